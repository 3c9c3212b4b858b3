// Package history provides the append-only log of every intake attempt and annotation.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"spoticord/internal/core"
)

// Header is the first line of every history file.
const Header = "time,user,result,track,name,artist,uri,note,id,ref"

const (
	legacyFieldCount  = 7
	currentFieldCount = 10
	legacyTimeLayout  = "2006-01-02 15:04:05.999999"
)

// Entries written before ids existed get a stable name-based id in this namespace.
var legacyNamespace = uuid.MustParse("6f1c8e52-37a4-4c1e-9d0b-5b7f0e2a9c41")

// ErrMalformed is returned when a history line cannot be decoded.
var ErrMalformed = errors.New("malformed history line")

// Entry is one immutable line of the history log. Exactly one of Verdict and
// Annotation is set.
type Entry struct {
	ID         string
	Time       time.Time
	User       string
	Verdict    core.Verdict
	Annotation core.Annotation
	TrackID    string
	TrackName  string
	Artist     string
	URI        string
	Note       string
	Ref        string
}

// WasSuccessful reports whether this entry put a track in the playlist.
func (e Entry) WasSuccessful() bool {
	return e.Annotation == 0 && e.Verdict.WasSuccessful()
}

// IsAnnotation reports whether this entry is a blame or praise.
func (e Entry) IsAnnotation() bool {
	return e.Annotation != 0
}

// Label is the value stored in the result column.
func (e Entry) Label() string {
	if e.IsAnnotation() {
		return e.Annotation.String()
	}
	return e.Verdict.String()
}

func (e Entry) validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("entry has no id")
	case e.Time.IsZero():
		return fmt.Errorf("entry has no timestamp")
	case e.IsAnnotation() && e.Verdict != 0:
		return fmt.Errorf("entry cannot carry both verdict and annotation")
	case e.IsAnnotation() && e.Ref == "":
		return fmt.Errorf("annotation must reference an entry")
	case !e.IsAnnotation() && !e.Verdict.Valid():
		return fmt.Errorf("entry has invalid verdict %d", int(e.Verdict))
	}
	return nil
}

// Line breaks inside free-text fields are backslash-escaped so every entry
// stays on one physical line. Legacy lines were written raw and are not unescaped.
var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r")
)

func quote(s string) string {
	return `"` + strings.ReplaceAll(escaper.Replace(s), `"`, `""`) + `"`
}

// encode renders e as a single line without the trailing newline.
func encode(e Entry) (string, error) {
	if err := e.validate(); err != nil {
		return "", err
	}
	fields := []string{
		e.Time.Format(time.RFC3339Nano),
		quote(e.User),
		e.Label(),
		quote(e.TrackID),
		quote(e.TrackName),
		quote(e.Artist),
		quote(e.URI),
		quote(e.Note),
		e.ID,
		e.Ref,
	}
	return strings.Join(fields, ","), nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(legacyTimeLayout, s, time.Local)
}

func decode(record []string, line int) (Entry, error) {
	if len(record) != legacyFieldCount && len(record) != currentFieldCount {
		return Entry{}, fmt.Errorf("%w at line %d: want %d or %d fields, got %d",
			ErrMalformed, line, legacyFieldCount, currentFieldCount, len(record))
	}

	ts, err := parseTime(record[0])
	if err != nil {
		return Entry{}, fmt.Errorf("%w at line %d: bad timestamp %q", ErrMalformed, line, record[0])
	}

	e := Entry{
		Time:      ts,
		User:      record[1],
		TrackID:   record[3],
		TrackName: record[4],
		Artist:    record[5],
		URI:       record[6],
	}

	if v, verr := core.ParseVerdict(record[2]); verr == nil {
		e.Verdict = v
	} else if a, aerr := core.ParseAnnotation(record[2]); aerr == nil {
		e.Annotation = a
	} else {
		return Entry{}, fmt.Errorf("%w at line %d: unknown result %q", ErrMalformed, line, record[2])
	}

	if len(record) == currentFieldCount {
		e.User = unescaper.Replace(e.User)
		e.TrackID = unescaper.Replace(e.TrackID)
		e.TrackName = unescaper.Replace(e.TrackName)
		e.Artist = unescaper.Replace(e.Artist)
		e.URI = unescaper.Replace(e.URI)
		e.Note = unescaper.Replace(record[7])
		e.ID = record[8]
		e.Ref = record[9]
	}
	if e.ID == "" {
		e.ID = uuid.NewSHA1(legacyNamespace, []byte(fmt.Sprintf("%d|%s", line, strings.Join(record, "|")))).String()
	}

	return e, nil
}

// Decode reads every entry after the header line. Any malformed line fails the whole read.
func Decode(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var entries []Entry
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if first {
			first = false
			continue
		}
		line, _ := reader.FieldPos(0)
		e, err := decode(record, line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
