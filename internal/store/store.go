package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/ALEYI17/InfraProbe_gpu/pkg/logutil"
)

// DoneKey is the reserved report key marking an aspect's measurement
// as complete and trustworthy for caching.
const DoneKey = "Done"

type MissingReportError struct {
	Aspect string
	Key    string
}

func (e MissingReportError) Error() string {
	return fmt.Sprintf("cannot get report %q from aspect %q", e.Key, e.Aspect)
}

// Document is an aspect-keyed JSON object bound to a file. It is held
// as raw JSON bytes so key order and entries written by other tools
// survive a load/flush round trip. Reads self-heal: a missing or
// malformed entry is replaced in place by a supplied default and the
// repair is persisted at the next Flush; valid data is never touched.
type Document struct {
	path string
	kind string
	raw  []byte
}

// Load reads the document at path. A missing file loads as an empty
// object; a file that is not a JSON object is healed to an empty
// object with a warning.
func Load(path, kind string) (*Document, error) {
	d := &Document{path: path, kind: kind, raw: []byte("{}")}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s document %q: %w", kind, path, err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		logutil.GetLogger().Warn("document is not a JSON object, a new one is created",
			zap.String("kind", kind), zap.String("path", path))
		return d, nil
	}
	d.raw = data
	return d, nil
}

// Flush rewrites the backing file, pretty-printed so operators can
// hand-edit it between runs.
func (d *Document) Flush() error {
	if err := os.WriteFile(d.path, pretty.Pretty(d.raw), 0o644); err != nil {
		return fmt.Errorf("writing %s document %q: %w", d.kind, d.path, err)
	}
	return nil
}

func (d *Document) Path() string { return d.path }

// Raw exposes the current JSON bytes.
func (d *Document) Raw() []byte { return d.raw }

var pathEscaper = strings.NewReplacer(
	`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`, `|`, `\|`, `#`, `\#`, `@`, `\@`,
)

func keyPath(keys ...string) string {
	escaped := make([]string, len(keys))
	for i, k := range keys {
		escaped[i] = pathEscaper.Replace(k)
	}
	return strings.Join(escaped, ".")
}

func (d *Document) set(path string, value any) {
	raw, err := sjson.SetBytes(d.raw, path, value)
	if err != nil {
		logutil.GetLogger().Error("cannot write document entry",
			zap.String("kind", d.kind), zap.String("path", path), zap.Error(err))
		return
	}
	d.raw = raw
}

func (d *Document) setEmptyObject(path string) {
	raw, err := sjson.SetRawBytes(d.raw, path, []byte("{}"))
	if err != nil {
		logutil.GetLogger().Error("cannot reset document entry",
			zap.String("kind", d.kind), zap.String("path", path), zap.Error(err))
		return
	}
	d.raw = raw
}

// Aspect returns the aspect's sub-document, healing a missing or
// malformed entry to an empty object.
func (d *Document) Aspect(aspect string) gjson.Result {
	path := keyPath(aspect)
	v := gjson.GetBytes(d.raw, path)
	if !v.IsObject() {
		logutil.GetLogger().Warn("aspect entry is invalid, a new record is created",
			zap.String("kind", d.kind), zap.String("aspect", aspect))
		d.setEmptyObject(path)
		v = gjson.GetBytes(d.raw, path)
	}
	return v
}

// Number returns the numeric value at aspect/key. A missing or
// non-numeric entry is replaced by def, which is then returned.
// Idempotent: once a value is stored, later calls return it unchanged.
func (d *Document) Number(aspect, key string, def float64) float64 {
	d.Aspect(aspect)
	path := keyPath(aspect, key)
	v := gjson.GetBytes(d.raw, path)
	if v.Type != gjson.Number {
		logutil.GetLogger().Warn("record entry is invalid, a new record is created",
			zap.String("kind", d.kind), zap.String("aspect", aspect), zap.String("key", key))
		d.set(path, def)
		return def
	}
	return v.Float()
}

// TryGet is a non-destructive lookup of aspect/key.
func (d *Document) TryGet(aspect, key string) (gjson.Result, bool) {
	if !gjson.GetBytes(d.raw, keyPath(aspect)).IsObject() {
		return gjson.Result{}, false
	}
	v := gjson.GetBytes(d.raw, keyPath(aspect, key))
	return v, v.Exists()
}

// MustGetNumber is TryGet for a numeric entry that a later aspect
// depends on; absence is a MissingReportError.
func (d *Document) MustGetNumber(aspect, key string) (float64, error) {
	v, ok := d.TryGet(aspect, key)
	if !ok || v.Type != gjson.Number {
		return 0, MissingReportError{Aspect: aspect, Key: key}
	}
	return v.Float(), nil
}

// Bool reports whether aspect/key holds JSON true.
func (d *Document) Bool(aspect, key string) bool {
	v, ok := d.TryGet(aspect, key)
	return ok && v.Type == gjson.True
}

// Set writes value at aspect/key unconditionally.
func (d *Document) Set(aspect, key string, value any) {
	d.Aspect(aspect)
	d.set(keyPath(aspect, key), value)
}

// Clear resets the aspect's sub-document to empty, forcing
// re-measurement even if a complete report exists.
func (d *Document) Clear(aspect string) {
	if aspect == "" {
		return
	}
	d.setEmptyObject(keyPath(aspect))
	logutil.GetLogger().Info("cleared aspect entry",
		zap.String("kind", d.kind), zap.String("aspect", aspect))
}
