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

// Package snss parses Chromium's binary SNSS session-restore format: an
// 8-byte header followed by a command stream of (u16 size, u8 id, payload)
// records. Parsing replays the command log in file order into tab and
// window state, so later commands override earlier ones and navigation
// entries keep their file order. Truncated or malformed trailing data stops
// the replay but keeps everything decoded so far.
package snss

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"
)

// Signature is the SNSS file magic, "SSNS" read as a little-endian u32.
const Signature = 0x53534E53

// File versions. The even versions carry OS-encrypted payloads and are
// flagged, never parsed.
const (
	Version1                   = 1
	VersionEncrypted           = 2
	VersionWithMarker          = 3
	VersionEncryptedWithMarker = 4
)

// Command ids. Session_* files and Tabs_* files use different ids for the
// same concepts: navigation entries arrive as CmdUpdateTabNavigation (6) in
// session files but CmdTabUpdateTabNavigation (1) in tab-restore files.
const (
	CmdSetTabWindow                      = 0
	CmdTabUpdateTabNavigation            = 1
	CmdSetTabIndexInWindow               = 2
	CmdTabSetTabWindow                   = 4
	CmdTabNavigationPathPrunedFromBack   = 5
	CmdUpdateTabNavigation               = 6
	CmdSetSelectedNavigationIndex        = 7
	CmdSetSelectedTabInIndex             = 8
	CmdSetWindowType                     = 9
	CmdTabNavigationPathPrunedFromFront  = 11
	CmdSetPinnedState                    = 12
	CmdSetExtensionAppID                 = 13
	CmdSetWindowBounds3                  = 14
	CmdSetWindowAppName                  = 15
	CmdTabClosed                         = 16
	CmdWindowClosed                      = 17
	CmdSetTabUserAgentOverride           = 18
	CmdSessionStorageAssociated          = 19
	CmdSetActiveWindow                   = 20
	CmdLastActiveTime                    = 21
	CmdSetWindowWorkspace2               = 23
	CmdTabNavigationPathPruned           = 24
	CmdSetTabGroup                       = 25
	CmdSetTabGroupMetadata2              = 27
	CmdSetTabGUID                        = 28
	CmdSetTabUserAgentOverride2          = 29
	CmdSetTabData                        = 30
	CmdSetWindowUserTitle                = 31
	CmdSetWindowVisibleOnAllWorkspaces   = 32
	CmdAddTabExtraData                   = 33
	CmdAddWindowExtraData                = 34
	CmdSetPlatformSessionID              = 35
	CmdSetSplitTab                       = 36
	CmdSetSplitTabData                   = 37
	CmdInitialStateMarker                = 255
)

var knownCommands = map[uint8]bool{
	CmdSetTabWindow: true, CmdTabUpdateTabNavigation: true, CmdSetTabIndexInWindow: true,
	CmdTabSetTabWindow: true, CmdTabNavigationPathPrunedFromBack: true, CmdUpdateTabNavigation: true,
	CmdSetSelectedNavigationIndex: true, CmdSetSelectedTabInIndex: true, CmdSetWindowType: true,
	CmdTabNavigationPathPrunedFromFront: true, CmdSetPinnedState: true, CmdSetExtensionAppID: true,
	CmdSetWindowBounds3: true, CmdSetWindowAppName: true, CmdTabClosed: true, CmdWindowClosed: true,
	CmdSetTabUserAgentOverride: true, CmdSessionStorageAssociated: true, CmdSetActiveWindow: true,
	CmdLastActiveTime: true, CmdSetWindowWorkspace2: true, CmdTabNavigationPathPruned: true,
	CmdSetTabGroup: true, CmdSetTabGroupMetadata2: true, CmdSetTabGUID: true,
	CmdSetTabUserAgentOverride2: true, CmdSetTabData: true, CmdSetWindowUserTitle: true,
	CmdSetWindowVisibleOnAllWorkspaces: true, CmdAddTabExtraData: true, CmdAddWindowExtraData: true,
	CmdSetPlatformSessionID: true, CmdSetSplitTab: true, CmdSetSplitTabData: true,
	CmdInitialStateMarker: true,
}

// windowsEpochOffsetMicros is the distance from the FILETIME epoch
// (1601-01-01) to the Unix epoch, in microseconds.
const windowsEpochOffsetMicros = 11644473600000000

// FiletimeMicrosToTime converts microseconds since the Windows FILETIME
// epoch to UTC time. Pre-Unix-epoch or non-positive inputs map to the zero
// time, never to a default date.
func FiletimeMicrosToTime(micros int64) time.Time {
	if micros <= 0 {
		return time.Time{}
	}
	unixMicros := micros - windowsEpochOffsetMicros
	if unixMicros < 0 {
		return time.Time{}
	}
	return time.UnixMicro(unixMicros).UTC()
}

// NavigationEntry is one decoded UpdateTabNavigation payload.
type NavigationEntry struct {
	Index                 int
	URL                   string
	Title                 string
	ReferrerURL           string
	OriginalRequestURL    string
	Timestamp             time.Time // zero when absent or invalid
	TransitionType        int
	HTTPStatusCode        int
	HasPostData           bool
	IsOverridingUserAgent bool
}

// Tab is the final state of one tab after replaying all commands.
type Tab struct {
	TabID                  int
	WindowID               int
	IndexInWindow          int
	Pinned                 bool
	LastActiveTime         time.Time
	CurrentNavigationIndex int
	Navigations            []NavigationEntry
}

// Window is the final state of one window after replaying all commands.
type Window struct {
	WindowID         int
	SelectedTabIndex int
	WindowType       int
}

// ParseResult is the decoded content of one SNSS file. IsValid false means
// downstream extraction should skip the file; it is never an error.
type ParseResult struct {
	IsValid         bool
	Version         int
	IsEncrypted     bool
	Tabs            []Tab
	Windows         []Window
	Navigations     []NavigationEntry
	Errors          []string
	TotalCommands   int
	UnknownCommands []int
}

type command struct {
	id      uint8
	payload []byte
}

// readCommands splits the byte stream after the header into commands. A
// zero-size or incomplete trailing command ends the stream quietly.
func readCommands(data []byte) []command {
	var commands []command
	pos := 0
	for pos+2 <= len(data) {
		size := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		if size == 0 || pos+size > len(data) {
			break
		}
		commands = append(commands, command{
			id:      data[pos],
			payload: data[pos+1 : pos+size],
		})
		pos += size
	}
	return commands
}

// state is the reducer accumulating tab and window maps while replaying the
// command log. Insertion order is preserved for stable output.
type state struct {
	tabs        map[int]*Tab
	windows     map[int]*Window
	tabOrder    []int
	windowOrder []int
	navigations []NavigationEntry
	unknown     map[int]bool
}

func newState() *state {
	return &state{
		tabs:    map[int]*Tab{},
		windows: map[int]*Window{},
		unknown: map[int]bool{},
	}
}

func (s *state) tab(tabID int) *Tab {
	if t, ok := s.tabs[tabID]; ok {
		return t
	}
	t := &Tab{TabID: tabID}
	s.tabs[tabID] = t
	s.tabOrder = append(s.tabOrder, tabID)
	return t
}

func (s *state) window(windowID int) *Window {
	if w, ok := s.windows[windowID]; ok {
		return w
	}
	w := &Window{WindowID: windowID}
	s.windows[windowID] = w
	s.windowOrder = append(s.windowOrder, windowID)
	return w
}

// apply replays one command onto the state. Malformed payloads are ignored;
// order matters, later commands override earlier state.
func (s *state) apply(cmd command) {
	if !knownCommands[cmd.id] {
		s.unknown[int(cmd.id)] = true
	}

	switch cmd.id {
	case CmdUpdateTabNavigation, CmdTabUpdateTabNavigation:
		tabID, entry, ok := parseNavigationEntry(cmd.payload)
		if !ok {
			return
		}
		tab := s.tab(tabID)
		tab.Navigations = append(tab.Navigations, entry)
		s.navigations = append(s.navigations, entry)

	case CmdSetTabWindow, CmdTabSetTabWindow:
		windowID, tabID, ok := readIntPair(cmd.payload)
		if !ok {
			return
		}
		s.tab(tabID).WindowID = windowID
		s.window(windowID)

	case CmdSetTabIndexInWindow:
		tabID, index, ok := readIntPair(cmd.payload)
		if !ok {
			return
		}
		s.tab(tabID).IndexInWindow = index

	case CmdSetPinnedState:
		if len(cmd.payload) < 5 {
			return
		}
		tabID := int(int32(binary.LittleEndian.Uint32(cmd.payload)))
		s.tab(tabID).Pinned = cmd.payload[4] != 0

	case CmdSetSelectedNavigationIndex:
		tabID, index, ok := readIntPair(cmd.payload)
		if !ok {
			return
		}
		s.tab(tabID).CurrentNavigationIndex = index

	case CmdSetSelectedTabInIndex:
		windowID, index, ok := readIntPair(cmd.payload)
		if !ok {
			return
		}
		s.window(windowID).SelectedTabIndex = index

	case CmdLastActiveTime:
		tabID, lastActive, ok := parseLastActiveTime(cmd.payload)
		if !ok {
			return
		}
		s.tab(tabID).LastActiveTime = lastActive

	case CmdTabClosed:
		if id, ok := parseClosedID(cmd.payload); ok {
			s.remove(&s.tabOrder, id)
			delete(s.tabs, id)
		}

	case CmdWindowClosed:
		if id, ok := parseClosedID(cmd.payload); ok {
			s.remove(&s.windowOrder, id)
			delete(s.windows, id)
		}
	}
}

func (s *state) remove(order *[]int, id int) {
	for i, v := range *order {
		if v == id {
			*order = append((*order)[:i], (*order)[i+1:]...)
			return
		}
	}
}

// Parse decodes SNSS bytes. It never returns an error: invalid input yields
// IsValid false with the reason in Errors, and truncation keeps whatever
// was decoded before the break.
func Parse(data []byte) *ParseResult {
	result := &ParseResult{}

	if len(data) < 8 {
		result.Errors = append(result.Errors, "file too small for header")
		return result
	}

	signature := binary.LittleEndian.Uint32(data)
	version := int(binary.LittleEndian.Uint32(data[4:]))

	if signature != Signature {
		result.Errors = append(result.Errors,
			fmt.Sprintf("invalid signature 0x%08X, expected 0x%08X", signature, Signature))
		return result
	}

	result.Version = version
	result.IsEncrypted = version == VersionEncrypted || version == VersionEncryptedWithMarker
	if result.IsEncrypted {
		result.Errors = append(result.Errors, "encrypted session files are not supported")
		return result
	}
	if version != Version1 && version != VersionWithMarker {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown version %d", version))
		return result
	}

	result.IsValid = true

	s := newState()
	for _, cmd := range readCommands(data[8:]) {
		result.TotalCommands++
		s.apply(cmd)
	}

	for _, tabID := range s.tabOrder {
		result.Tabs = append(result.Tabs, *s.tabs[tabID])
	}
	for _, windowID := range s.windowOrder {
		result.Windows = append(result.Windows, *s.windows[windowID])
	}
	result.Navigations = s.navigations

	for id := range s.unknown {
		result.UnknownCommands = append(result.UnknownCommands, id)
	}
	sort.Ints(result.UnknownCommands)

	return result
}

// parseNavigationEntry decodes an UpdateTabNavigation payload: a pickle
// header, the tab id, then the SerializedNavigationEntry fields. Fields
// after transition_type are optional and stop decoding quietly when absent.
func parseNavigationEntry(payload []byte) (int, NavigationEntry, bool) {
	var entry NavigationEntry
	if len(payload) < 16 {
		return 0, entry, false
	}

	r := newPickleReader(payload)

	// pickle header (payload size), not the tab id
	if _, ok := r.readInt32(); !ok {
		return 0, entry, false
	}
	tabID, ok := r.readInt32()
	if !ok {
		return 0, entry, false
	}

	if index, ok := r.readInt32(); ok {
		entry.Index = int(index)
	}

	url, ok := r.readString()
	if !ok {
		return 0, entry, false
	}
	entry.URL = url

	if title, ok := r.readString16(); ok {
		entry.Title = title
	}

	// encoded page state, can be large, skipped
	r.readString()

	if transition, ok := r.readInt32(); ok {
		entry.TransitionType = int(transition)
	}

	if typeMask, ok := r.readInt32(); ok {
		entry.HasPostData = typeMask&1 != 0

		if referrer, ok := r.readString(); ok {
			entry.ReferrerURL = referrer
		}

		r.readInt32() // referrer policy, deprecated

		if originalURL, ok := r.readString(); ok {
			entry.OriginalRequestURL = originalURL
		}

		if override, ok := r.readBool(); ok {
			entry.IsOverridingUserAgent = override
		}

		if micros, ok := r.readInt64(); ok {
			entry.Timestamp = FiletimeMicrosToTime(micros)
		}

		r.readString16() // search terms, removed from Chromium but still serialized

		if status, ok := r.readInt32(); ok {
			entry.HTTPStatusCode = int(status)
		}
	}

	return int(tabID), entry, true
}

// parseLastActiveTime decodes the Chrome 100+ layout: tab id, 4 bytes of
// padding, then a FILETIME microsecond timestamp.
func parseLastActiveTime(payload []byte) (int, time.Time, bool) {
	if len(payload) < 16 {
		return 0, time.Time{}, false
	}
	tabID := int(int32(binary.LittleEndian.Uint32(payload)))
	micros := int64(binary.LittleEndian.Uint64(payload[8:]))
	t := FiletimeMicrosToTime(micros)
	if t.IsZero() {
		return 0, time.Time{}, false
	}
	return tabID, t, true
}

func parseClosedID(payload []byte) (int, bool) {
	if len(payload) < 12 {
		return 0, false
	}
	return int(int32(binary.LittleEndian.Uint32(payload))), true
}

func readIntPair(payload []byte) (int, int, bool) {
	if len(payload) < 8 {
		return 0, 0, false
	}
	a := int(int32(binary.LittleEndian.Uint32(payload)))
	b := int(int32(binary.LittleEndian.Uint32(payload[4:])))
	return a, b, true
}
