// Package model holds the types shared by the pipeline engine and its options:
// step metadata, typed step outputs and the hooks an option can implement.
package model
