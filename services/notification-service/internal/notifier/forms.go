package notifier

import (
	"errors"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"

	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/email"
)

// FormsSource supplies the intake forms attached to the forms email.
type FormsSource interface {
	Forms() ([]email.Attachment, error)
}

// DirForms attaches every regular file in Dir. A missing directory means no forms.
type DirForms struct {
	Dir string
}

func (d DirForms) Forms() ([]email.Attachment, error) {
	entries, err := os.ReadDir(d.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []email.Attachment
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.Dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, email.Attachment{
			Name:        e.Name(),
			ContentType: mime.TypeByExtension(filepath.Ext(e.Name())),
			Data:        data,
		})
	}
	return out, nil
}
