package tracksvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/openmotion/vrio/vrinput"
)

// TrackedDevice is the persisted record of a device the service has seen.
type TrackedDevice struct {
	Device      string    `json:"device"`
	Style       string    `json:"style"`
	DOF         int       `json:"dof"`
	LastSlot    int       `json:"lastSlot"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

var ErrDeviceNotFound = errors.New("device not found")

func deviceKey(device string) []byte {
	return []byte(fmt.Sprintf("track/devices/%s", device))
}

func (s *Service) persistDevice(c *vrinput.Controller) error {
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		key := deviceKey(c.Name())
		var dev TrackedDevice
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			dev = TrackedDevice{FirstSeenAt: now}
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal device record: %w", err)
			}
		}
		dev.Device = c.Name()
		dev.Style = string(c.Style())
		dev.DOF = c.DOF()
		dev.LastSlot = c.Index()
		if dev.FirstSeenAt.IsZero() {
			dev.FirstSeenAt = now
		}
		dev.LastSeenAt = now
		b, err := json.Marshal(dev)
		if err != nil {
			return fmt.Errorf("failed to marshal device record: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return fmt.Errorf("failed to store device record: %w", err)
	}
	return nil
}

// touchDevice refreshes the last-seen timestamp of a known device.
func (s *Service) touchDevice(device string) error {
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		key := deviceKey(device)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var dev TrackedDevice
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dev)
		})
		if err != nil {
			return fmt.Errorf("failed to unmarshal device record: %w", err)
		}
		dev.LastSeenAt = now
		b, err := json.Marshal(dev)
		if err != nil {
			return fmt.Errorf("failed to marshal device record: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return fmt.Errorf("failed to update device record: %w", err)
	}
	return nil
}

// ListDevices returns every device record the service has ever stored.
func (s *Service) ListDevices() ([]TrackedDevice, error) {
	var devices []TrackedDevice
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte("track/devices/")
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var dev TrackedDevice
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return err
			}
			devices = append(devices, dev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// GetDevice returns the stored record for one device identifier.
func (s *Service) GetDevice(device string) (TrackedDevice, error) {
	var dev TrackedDevice
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(deviceKey(device))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrDeviceNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dev)
		})
	})
	if err != nil {
		return TrackedDevice{}, fmt.Errorf("failed to get device: %w", err)
	}
	return dev, nil
}
