// Package messagelog keeps a plain-text copy of every outgoing message, one file per
// message, whether or not a real provider delivered it.
package messagelog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Entry struct {
	Kind        string
	To          string
	Subject     string
	Body        string
	Attachments []string
}

type FileLog struct {
	dir string
	now func() time.Time
}

func New(dir string) *FileLog {
	return &FileLog{dir: dir, now: time.Now}
}

// Write stores e as <kind>_<YYYYmmdd_HHMMSS>.txt and returns the path. Messages written in
// the same second get a numeric suffix.
func (l *FileLog) Write(e Entry) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", err
	}
	base := fmt.Sprintf("%s_%s", e.Kind, l.now().Format("20060102_150405"))

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\nSubject: %s\n\n%s\n", e.To, e.Subject, e.Body)
	if len(e.Attachments) > 0 {
		fmt.Fprintf(&b, "\nAttachments: %s\n", strings.Join(e.Attachments, ", "))
	}

	for i := 1; ; i++ {
		name := base + ".txt"
		if i > 1 {
			name = fmt.Sprintf("%s_%d.txt", base, i)
		}
		path := filepath.Join(l.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, werr := f.WriteString(b.String())
		cerr := f.Close()
		if werr != nil {
			return "", werr
		}
		return path, cerr
	}
}
