package metadata

import "fmt"

// ErrSchemaDrift reports an UpdateSchema call that kept the stored
// version but changed the schema's content without an override naming
// that exact version — §7's "schema drift" failure, fatal unless
// overridden.
type ErrSchemaDrift struct {
	Version int
}

func (e ErrSchemaDrift) Error() string {
	return fmt.Sprintf("metadata: schema drift at version %d without a matching override", e.Version)
}
