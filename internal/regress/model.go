// Package regress fits linear regression models on encoded matrices and
// keeps the one that generalises best.
package regress

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
)

var (
	// ErrShapeMismatch is returned when features and coefficients disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrEncoderMismatch is returned when the persisted encoder is not the one
	// the model was trained on.
	ErrEncoderMismatch = errors.New("encoder does not match model")
)

// Model is a fitted linear model: y = Intercept + Coef . x.
type Model struct {
	Name      string
	Coef      []float64
	Intercept float64
	// EncoderDigest identifies the encoder blob the model was trained on.
	EncoderDigest string
}

// BindEncoder records the encoder blob the model expects its input from.
func (m *Model) BindEncoder(encoderBlob []byte) {
	m.EncoderDigest = artifact.Digest(encoderBlob)
}

// CheckEncoder fails unless encoderBlob is the blob the model was bound to.
func (m *Model) CheckEncoder(encoderBlob []byte) error {
	if m.EncoderDigest == "" {
		return errors.Wrapf(ErrEncoderMismatch, "model %s is not bound to an encoder", m.Name)
	}
	if got := artifact.Digest(encoderBlob); got != m.EncoderDigest {
		return errors.Wrapf(ErrEncoderMismatch, "model %s expects encoder %.12s, found %.12s", m.Name, m.EncoderDigest, got)
	}

	return nil
}

// Predict returns one prediction per row of x.
func (m *Model) Predict(x mat.Matrix) ([]float64, error) {
	r, c := x.Dims()
	if c != len(m.Coef) {
		return nil, errors.Wrapf(ErrShapeMismatch, "model %s expects %d features, got %d", m.Name, len(m.Coef), c)
	}

	out := make([]float64, r)
	if c == 0 {
		floats.AddConst(m.Intercept, out)

		return out, nil
	}
	var pred mat.VecDense
	pred.MulVec(x, mat.NewVecDense(c, m.Coef))
	for i := range out {
		out[i] = pred.AtVec(i) + m.Intercept
	}

	return out, nil
}

// modelState has the fields of Model without its gob methods.
type modelState Model

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (m *Model) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(modelState(*m))
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode model")
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (m *Model) UnmarshalBinary(data []byte) error {
	var state modelState
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state)
	if err != nil {
		return errors.Wrap(err, "unable to decode model")
	}
	*m = Model(state)

	return nil
}
