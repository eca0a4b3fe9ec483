// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package sessions_test

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/browsercase"
	"github.com/forensicanalysis/browsercase/discover"
	"github.com/forensicanalysis/browsercase/evidencefs"
	"github.com/forensicanalysis/browsercase/pipeline"
	"github.com/forensicanalysis/browsercase/sessions"
	"github.com/forensicanalysis/browsercase/warnings"
)

// snss test data builders, mirroring the on-disk layout: an 8-byte header
// followed by (u16 size, u8 id, payload) commands with 4-byte aligned
// pickle fields.

func pad4(n int) int { return (4 - n%4) % 4 }

func appendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func appendInt64(b []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(v))
}

func appendString(b []byte, s string) []byte {
	b = appendInt32(b, int32(len(s)))
	b = append(b, s...)
	return append(b, make([]byte, pad4(len(s)))...)
}

func appendString16(b []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	b = appendInt32(b, int32(len(units)))
	for _, unit := range units {
		b = binary.LittleEndian.AppendUint16(b, unit)
	}
	return append(b, make([]byte, pad4(len(units)*2))...)
}

func snssHeader(version uint32) []byte {
	b := binary.LittleEndian.AppendUint32(nil, 0x53534E53)
	return binary.LittleEndian.AppendUint32(b, version)
}

func appendCommand(file []byte, id uint8, payload []byte) []byte {
	file = binary.LittleEndian.AppendUint16(file, uint16(len(payload)+1))
	file = append(file, id)
	return append(file, payload...)
}

func intPair(a, b int32) []byte {
	return appendInt32(appendInt32(nil, a), b)
}

const testFiletime = 13254000000000000 // 2021-01-19T04:00:00Z

func navPayload(tabID, index int32, url, title string) []byte {
	p := appendInt32(nil, 0) // pickle header
	p = appendInt32(p, tabID)
	p = appendInt32(p, index)
	p = appendString(p, url)
	p = appendString16(p, title)
	p = appendString(p, "")  // page state
	p = appendInt32(p, 1)    // transition: typed
	p = appendInt32(p, 0)    // type mask
	p = appendString(p, "https://ref.example.com/")
	p = appendInt32(p, 0) // referrer policy
	p = appendString(p, "")
	p = appendInt32(p, 0) // user agent override
	p = appendInt64(p, testFiletime)
	p = appendString16(p, "") // search terms
	return appendInt32(p, 200)
}

func sessionData() []byte {
	data := snssHeader(3)
	data = appendCommand(data, 6, navPayload(1, 0, "chrome://settings/", "Settings"))
	data = appendCommand(data, 6, navPayload(1, 1, "https://example.com/", "Example"))
	data = appendCommand(data, 0, intPair(10, 1)) // tab 1 into window 10
	data = appendCommand(data, 7, intPair(1, 1))  // selected navigation index
	data = appendCommand(data, 8, intPair(10, 0)) // selected tab in window
	return data
}

func testExtractor(t *testing.T, browsers []string) (*sessions.Extractor, *browsercase.CaseDB) {
	t.Helper()
	db, err := browsercase.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sessions.New(db, 1, browsers), db
}

func testProvenance() browsercase.Provenance {
	return browsercase.Provenance{
		EvidenceID:     1,
		RunID:          "RUN",
		SourcePath:     "Users/alice/AppData/Local/Google/Chrome/User Data/Default/Current Session",
		PartitionIndex: 1,
		DiscoveredBy:   "chromium_sessions:1.0:RUN",
	}
}

func testFile() pipeline.ExtractedFile {
	return pipeline.ExtractedFile{
		SourcePath: "Users/alice/AppData/Local/Google/Chrome/User Data/Default/Current Session",
		Browser:    "chrome",
		Profile:    "Default",
		FileType:   "current_session",
	}
}

func TestParse(t *testing.T) {
	extractor, db := testExtractor(t, nil)
	collector := warnings.NewCollector("chromium_sessions", "RUN", 1)

	records, err := extractor.Parse(sessionData(), testFile(), testProvenance(), collector)
	require.NoError(t, err)

	// one window, one tab, two navigations, two url events: the selected
	// https navigation plus the same entry from the history walk. The
	// chrome:// entry stays in session_navigations but is never cross-posted.
	assert.Equal(t, 6, records)
	assert.Equal(t, 0, collector.Count())

	for table, want := range map[string]int64{
		"session_windows":     1,
		"session_tabs":        1,
		"session_navigations": 2,
		"urls":                2,
	} {
		n, err := db.CountByRun(table, 1, "RUN")
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}
}

func TestParseSyntheticWindow(t *testing.T) {
	extractor, db := testExtractor(t, nil)

	// tab-restore stream: navigation only, no window commands
	data := snssHeader(1)
	data = appendCommand(data, 1, navPayload(7, 0, "https://example.com/a", "A"))

	// synthetic window + tab + navigation + two url events (selected entry
	// plus the history walk)
	records, err := extractor.Parse(data, testFile(), testProvenance(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, records)

	n, err := db.CountByRun("session_windows", 1, "RUN")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestParseEncrypted(t *testing.T) {
	extractor, _ := testExtractor(t, nil)
	collector := warnings.NewCollector("chromium_sessions", "RUN", 1)

	records, err := extractor.Parse(snssHeader(2), testFile(), testProvenance(), collector)
	require.NoError(t, err, "encrypted files are flagged, not failed")
	assert.Equal(t, 0, records)

	buffered := collector.Warnings()
	require.Len(t, buffered, 2)
	assert.Equal(t, warnings.TypeVersionUnsupported, buffered[0].WarningType)
	assert.Equal(t, "encrypted_session", buffered[0].ItemName)
	assert.Equal(t, warnings.TypeBinaryFormatError, buffered[1].WarningType)
}

func TestParseInvalidSignature(t *testing.T) {
	extractor, _ := testExtractor(t, nil)
	collector := warnings.NewCollector("chromium_sessions", "RUN", 1)

	records, err := extractor.Parse([]byte("not a session file"), testFile(), testProvenance(), collector)
	require.NoError(t, err)
	assert.Equal(t, 0, records)

	buffered := collector.Warnings()
	require.Len(t, buffered, 1)
	assert.Equal(t, warnings.TypeBinaryFormatError, buffered[0].WarningType)
	assert.Equal(t, warnings.SeverityError, buffered[0].Severity)
}

func TestParseSkipsCompanions(t *testing.T) {
	extractor, _ := testExtractor(t, nil)

	file := testFile()
	file.FileType = "current_session_companion"
	records, err := extractor.Parse([]byte("journal bytes"), file, testProvenance(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, records)
}

const chromeSessionPath = "Users/alice/AppData/Local/Google/Chrome/User Data/Default/Current Session"
const edgeSessionPath = "Users/alice/AppData/Local/Microsoft/Edge/User Data/Default/Current Session"

func seedFileList(t *testing.T, db *browsercase.CaseDB, paths ...string) {
	t.Helper()
	rows := make([]browsercase.FileListRow, 0, len(paths))
	for _, p := range paths {
		rows = append(rows, browsercase.NewFileListRow(1, 1, p, 1024))
	}
	require.NoError(t, db.InsertFileList(rows))
}

func TestDiscover(t *testing.T) {
	extractor, db := testExtractor(t, nil)
	seedFileList(t, db, chromeSessionPath, edgeSessionPath, "Users/alice/Documents/notes.txt")

	result := extractor.Discover()
	assert.Equal(t, 2, result.TotalMatches)
}

func TestDiscoverBrowserSelection(t *testing.T) {
	extractor, db := testExtractor(t, []string{"chrome"})
	seedFileList(t, db, chromeSessionPath, edgeSessionPath)

	result := extractor.Discover()
	require.Equal(t, 1, result.TotalMatches)
	assert.Equal(t, chromeSessionPath, result.AllMatches()[0].FilePath)
}

func TestDiscoverEmbeddedRoot(t *testing.T) {
	// two distinct artifact signals make ProgramData/MyApp/profile an
	// embedded Chromium root; its session file is picked up even though the
	// path matches no registered browser install
	extractor, db := testExtractor(t, []string{"chrome"})
	seedFileList(t, db,
		"ProgramData/MyApp/profile/Cookies",
		"ProgramData/MyApp/profile/History",
		"ProgramData/MyApp/profile/Current Session",
	)

	result := extractor.Discover()
	require.Equal(t, 1, result.TotalMatches)
	match := result.AllMatches()[0]
	assert.Equal(t, "ProgramData/MyApp/profile/Current Session", match.FilePath)

	meta := extractor.Classify(match)
	assert.Equal(t, "chromium_embedded", meta.Browser)
	assert.Equal(t, "Default", meta.Profile)
	assert.Equal(t, "current_session", meta.FileType)
}

func TestDiscoverFallbackWalk(t *testing.T) {
	// empty file_list: discovery must glob the live filesystem instead of
	// returning nothing
	extractor, _ := testExtractor(t, nil)

	evidence := afero.NewMemMapFs()
	for _, p := range []string{chromeSessionPath, "Users/alice/Documents/notes.txt"} {
		require.NoError(t, afero.WriteFile(evidence, p, []byte("data"), 0600))
	}
	extractor.Opener = &evidencefs.DirOpener{Partitions: map[int]afero.Fs{1: evidence}}
	extractor.Partitions = []int{1}

	result := extractor.Discover()
	require.Equal(t, 1, result.TotalMatches)

	match := result.AllMatches()[0]
	assert.Equal(t, chromeSessionPath, match.FilePath)
	assert.Equal(t, 1, match.PartitionIndex)

	meta := extractor.Classify(match)
	assert.Equal(t, "chrome", meta.Browser)
	assert.Equal(t, "Default", meta.Profile)
	assert.Equal(t, "current_session", meta.FileType)
}

func TestDiscoverFallbackWalkBrowserSelection(t *testing.T) {
	extractor, _ := testExtractor(t, []string{"edge"})

	evidence := afero.NewMemMapFs()
	for _, p := range []string{chromeSessionPath, edgeSessionPath} {
		require.NoError(t, afero.WriteFile(evidence, p, []byte("data"), 0600))
	}
	extractor.Opener = &evidencefs.DirOpener{Partitions: map[int]afero.Fs{1: evidence}}
	extractor.Partitions = []int{1}

	result := extractor.Discover()
	require.Equal(t, 1, result.TotalMatches)
	assert.Equal(t, edgeSessionPath, result.AllMatches()[0].FilePath)
}

func TestDiscoverPrefersFileIndex(t *testing.T) {
	// a populated index wins over the filesystem walk
	extractor, db := testExtractor(t, nil)
	seedFileList(t, db, chromeSessionPath)

	evidence := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(evidence, edgeSessionPath, []byte("data"), 0600))
	extractor.Opener = &evidencefs.DirOpener{Partitions: map[int]afero.Fs{1: evidence}}
	extractor.Partitions = []int{1}

	result := extractor.Discover()
	require.Equal(t, 1, result.TotalMatches)
	assert.Equal(t, chromeSessionPath, result.AllMatches()[0].FilePath)
}

func TestClassify(t *testing.T) {
	extractor, _ := testExtractor(t, nil)

	meta := extractor.Classify(discover.Match{
		FilePath:       "Users/alice/AppData/Local/Google/Chrome/User Data/Profile 2/Sessions/Session_13353533606528067",
		FileName:       "Session_13353533606528067",
		PartitionIndex: 1,
	})
	assert.Equal(t, "chrome", meta.Browser)
	assert.Equal(t, "Profile 2", meta.Profile)
	assert.Equal(t, "session_timestamped", meta.FileType)
}

func TestDeleteRunIdempotent(t *testing.T) {
	extractor, db := testExtractor(t, nil)

	_, err := extractor.Parse(sessionData(), testFile(), testProvenance(), nil)
	require.NoError(t, err)

	deleted, err := extractor.DeleteRun(1, "RUN")
	require.NoError(t, err)
	assert.EqualValues(t, 6, deleted)

	deleted, err = extractor.DeleteRun(1, "RUN")
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)

	n, err := db.CountByRun("session_tabs", 1, "RUN")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
