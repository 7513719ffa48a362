//go:build !darwin

package securestore

// unsupportedStore reports unavailable on platforms without a bound
// credential store; the orchestrator's fallback policy takes over.
type unsupportedStore struct{}

// New returns the platform secure store.
func New() Store {
	return unsupportedStore{}
}

func (unsupportedStore) Available() bool { return false }

func (unsupportedStore) Write(name string, data []byte) error {
	return ErrUnavailable
}

func (unsupportedStore) Read(name string) ([]byte, error) {
	return nil, ErrUnavailable
}

func (unsupportedStore) Delete(name string) error {
	return ErrUnavailable
}
