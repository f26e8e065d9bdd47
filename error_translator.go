package sqlbind

// ErrorTranslator is an option that can be passed to NewMapper, NewRowMapper, NewRunner
// (or any of the read methods) and is called with any errors so that they can be
// translated (or wrapped)
//
// Is particularly useful for translating sql.ErrNoRows errors to your own 'not found' errors
type ErrorTranslator interface {
	// Translate translates the passed error
	Translate(error) error
}

// ErrorTranslatorFunc is a func adaptor for ErrorTranslator
type ErrorTranslatorFunc func(error) error

func (f ErrorTranslatorFunc) Translate(err error) error {
	return f(err)
}

var _ ErrorTranslator = (ErrorTranslatorFunc)(nil)

func translateError(err error, translator ErrorTranslator) error {
	if err == nil {
		return nil
	}
	return translator.Translate(err)
}

var defaultErrorTranslator ErrorTranslator = &defErrorTranslator{}

type defErrorTranslator struct{}

func (e *defErrorTranslator) Translate(err error) error {
	return err
}
