package pipeline

import (
	"context"
	"testing"

	"github.com/askiada/gemstone-pipeline/pkg/pipeline/model"
)

func createInputChan(t *testing.T, total int) chan int {
	t.Helper()

	inputChan := make(chan int)

	go func() {
		defer close(inputChan)

		for i := range total {
			inputChan <- i
		}
	}()

	return inputChan
}

func createInputStep(t *testing.T, total int) *model.Step[int] {
	t.Helper()

	return &model.Step[int]{
		Output:  createInputChan(t, total),
		Details: &model.StepInfo{Name: "input"},
	}
}

func createInputChanWithCancel(t *testing.T, total int, offset int, cancel context.CancelFunc) chan int {
	t.Helper()

	inputChan := make(chan int, total)

	go func() {
		defer close(inputChan)

		for i := range total {
			if i == offset {
				cancel()
			}

			inputChan <- i
		}
	}()

	return inputChan
}

func processOutputChan(t *testing.T, output <-chan int) []int {
	t.Helper()

	res := []int{}

	for out := range output {
		res = append(res, out)
	}

	return res
}
