//go:build darwin

package securestore

import (
	"fmt"

	keychain "github.com/keybase/go-keychain"
)

const (
	keychainService = "sh.lockbox.wrapped-key"
	keychainLabel   = "lockbox wrapped vault key"
)

// keychainStore keeps wrapped keys in the macOS Keychain: device-local, not
// synchronized, readable only while the device is unlocked.
type keychainStore struct{}

// New returns the platform secure store.
func New() Store {
	return keychainStore{}
}

func (keychainStore) Available() bool {
	// A read of a nonexistent item exercises the keychain API end to end
	// without prompting or mutating anything.
	_, err := keychain.GetGenericPassword(keychainService, "availability-probe", "", "")
	return err == nil || err == keychain.ErrorItemNotFound
}

func (keychainStore) Write(name string, data []byte) error {
	item := keychain.NewGenericPassword(keychainService, name, keychainLabel, data, "")
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := keychain.AddItem(item); err != nil {
		if err == keychain.ErrorDuplicateItem {
			query := keychain.NewGenericPassword(keychainService, name, "", nil, "")
			update := keychain.NewItem()
			update.SetData(data)
			if err := keychain.UpdateItem(query, update); err != nil {
				return fmt.Errorf("update keychain item: %w", err)
			}
			return nil
		}
		return fmt.Errorf("add keychain item: %w", err)
	}
	return nil
}

func (keychainStore) Read(name string) ([]byte, error) {
	data, err := keychain.GetGenericPassword(keychainService, name, "", "")
	if err != nil {
		if err == keychain.ErrorItemNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read keychain item: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

func (keychainStore) Delete(name string) error {
	query := keychain.NewGenericPassword(keychainService, name, "", nil, "")
	if err := keychain.DeleteItem(query); err != nil && err != keychain.ErrorItemNotFound {
		return fmt.Errorf("delete keychain item: %w", err)
	}
	return nil
}
