package errors_test

import (
	"fmt"
	"io"

	stderrors "errors"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// Example demonstrates basic error creation.
func Example() {
	err := errors.New(errors.ErrorTypeLengthMismatch, "column Jet_p4 expects 4 values").
		WithDetail("column", "Jet_p4").
		WithDetail("got", 3)

	fmt.Println(err.Error())

	// Output:
	// length_mismatch: column Jet_p4 expects 4 values
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeFile, "failed to read manifest").
		WithDetail("container", "out.ntuple")

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}
	if stderrors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Original error was unexpected EOF")
	}

	// Output:
	// This is a file error
	// Original error was unexpected EOF
}

// ExampleTypeOf demonstrates dispatching on the error category.
func ExampleTypeOf() {
	errs := []error{
		errors.New(errors.ErrorTypeUnknownColumn, "no column named nMuon"),
		errors.New(errors.ErrorTypeState, "cannot declare columns after the first row"),
		errors.Newf(errors.ErrorTypeConfig, "unrecognized element type %q", "X"),
	}
	for _, err := range errs {
		fmt.Println(errors.TypeOf(err))
	}

	// Output:
	// unknown_column
	// state
	// config
}
