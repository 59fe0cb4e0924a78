package extract

import (
	"errors"
	"fmt"
)

// Kind classifies why an extraction failed.
type Kind string

const (
	KindFetch             Kind = "FETCH_ERROR"
	KindIO                Kind = "IO_ERROR"
	KindPDFParse          Kind = "PDF_PARSE_ERROR"
	KindRender            Kind = "RENDER_ERROR"
	KindEngineInit        Kind = "ENGINE_INIT_ERROR"
	KindRecognition       Kind = "RECOGNITION_ERROR"
	KindUnsupportedFormat Kind = "UNSUPPORTED_FORMAT"
	KindEmptyResult       Kind = "EMPTY_RESULT"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrFetch             = errors.New("fetch failed")
	ErrIO                = errors.New("input unreadable")
	ErrPDFParse          = errors.New("pdf could not be parsed")
	ErrRender            = errors.New("page could not be rasterized")
	ErrEngineInit        = errors.New("ocr engine could not be initialized")
	ErrRecognition       = errors.New("recognition failed")
	ErrUnsupportedFormat = errors.New("format not supported by this extractor")
	ErrEmptyResult       = errors.New("could not extract text from the document")
)

var sentinels = map[Kind]error{
	KindFetch:             ErrFetch,
	KindIO:                ErrIO,
	KindPDFParse:          ErrPDFParse,
	KindRender:            ErrRender,
	KindEngineInit:        ErrEngineInit,
	KindRecognition:       ErrRecognition,
	KindUnsupportedFormat: ErrUnsupportedFormat,
	KindEmptyResult:       ErrEmptyResult,
}

// Error is the typed failure returned by every stage of the extraction pipeline.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrFetch) match without the sentinel being in the chain.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// NewError builds a typed extraction error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Errorf builds a typed extraction error with a formatted message and no cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Wrap returns err unchanged when it already carries a kind, otherwise it wraps it as kind.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return NewError(kind, message, err)
}
