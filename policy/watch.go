package policy

import (
	"github.com/teranos/ldschema/am"
	"github.com/teranos/ldschema/logger"
)

// Watch loads path into b and reloads it whenever the file changes. Stop
// the returned watcher when done.
func Watch(b *Blocklist, path string) (*am.FileWatcher, error) {
	if err := b.Reload(path); err != nil {
		return nil, err
	}

	fw, err := am.NewFileWatcher(path)
	if err != nil {
		return nil, err
	}
	fw.OnChange(func(p string) error {
		if err := b.Reload(p); err != nil {
			return err
		}
		logger.Infow("Type blocklist reloaded",
			logger.FieldFile, p,
			logger.FieldCount, len(b.Types()))
		return nil
	})
	fw.Start()
	return fw, nil
}
