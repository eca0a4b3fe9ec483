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

package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBrowser(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"Users/alice/AppData/Local/Google/Chrome/User Data/Default/Current Session", "chrome"},
		{"Users/alice/AppData/Local/Google/Chrome SxS/User Data/Default/History", "chrome_canary"},
		{"Users/alice/AppData/Local/Google/Chrome Beta/User Data/Default/History", "chrome_beta"},
		{"home/bob/.config/google-chrome-unstable/Default/History", "chrome_dev"},
		{"Users/alice/AppData/Local/Microsoft/Edge/User Data/Profile 1/Last Session", "edge"},
		{"Users/alice/AppData/Local/Microsoft/Edge SxS/User Data/Default/Cookies", "edge_canary"},
		{"Users/alice/AppData/Local/BraveSoftware/Brave-Browser/User Data/Default/History", "brave"},
		{"home/bob/.config/BraveSoftware/Brave-Browser-Nightly/Default/History", "brave_nightly"},
		{"Users/alice/AppData/Roaming/Opera Software/Opera Stable/Current Session", "opera"},
		{"Users/alice/AppData/Roaming/Opera Software/Opera GX Stable/Current Session", "opera_gx"},
		{"home/bob/.config/chromium/Default/History", "chromium"},
		{`Users\alice\AppData\Local\Google\Chrome\User Data\Default\History`, "chrome"},
		{"Users/alice/Documents/notes.txt", ""},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, DetectBrowser(test.path, nil), test.path)
	}
}

func TestDetectBrowserEmbedded(t *testing.T) {
	roots := []string{"ProgramData/MyApp/profile"}
	assert.Equal(t, "chromium_embedded",
		DetectBrowser("ProgramData/MyApp/profile/Current Session", roots))
	assert.Equal(t, "",
		DetectBrowser("ProgramData/OtherApp/data/Current Session", roots))
	// registered browsers win over embedded roots
	assert.Equal(t, "chrome",
		DetectBrowser("Users/alice/AppData/Local/Google/Chrome/User Data/Default/History", roots))
}

func TestProfileFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"Users/john/AppData/Local/Google/Chrome/User Data/Profile 1/History", "Profile 1"},
		{"Users/john/AppData/Local/Google/Chrome/User Data/Default/Current Session", "Default"},
		{"Users/john/AppData/Local/Google/Chrome/User Data/History", "Default"},
		{"home/user/.config/google-chrome/Default/History", "Default"},
		{"home/user/.config/google-chrome/Profile 2/History", "Profile 2"},
		{"Users/john/AppData/Roaming/Opera Software/Opera Stable/Current Session", "Opera Stable"},
		{"Users/john/Library/Application Support/com.operasoftware.Opera/History", "Default"},
		{"ProgramData/MyApp/profile/Current Session", "Default"},
		{"some/random/path.txt", ""},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, ProfileFromPath(test.path), test.path)
	}
}

func TestClassifyFile(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"User Data/Default/Current Session", "current_session"},
		{"User Data/Default/Last Session", "last_session"},
		{"User Data/Default/Current Tabs", "current_tabs"},
		{"User Data/Default/Last Tabs", "last_tabs"},
		{"User Data/Default/Sessions/Session_13353533606528067", "session_timestamped"},
		{"User Data/Default/Sessions/Tabs_13353533606528067", "tabs_timestamped"},
		{"User Data/Default/Bookmarks", "unknown"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, ClassifyFile(test.path), test.path)
	}
}

func TestSessionPatterns(t *testing.T) {
	chrome := SessionPatterns("chrome")
	assert.Contains(t, chrome, "Users/*/AppData/Local/Google/Chrome/User Data/Default/Current Session")
	assert.Contains(t, chrome, "Users/*/AppData/Local/Google/Chrome/User Data/Profile */Sessions/Session_*")
	assert.Contains(t, chrome, "home/*/.config/google-chrome/Default/Last Tabs")

	// flat profile layout, no Default subdirectory
	opera := SessionPatterns("opera")
	assert.Contains(t, opera, "Users/*/AppData/Roaming/Opera Software/Opera Stable/Current Session")
	for _, pattern := range opera {
		assert.NotContains(t, pattern, "/Default/")
	}

	assert.Empty(t, SessionPatterns("netscape"))
}

func TestTransitionLabel(t *testing.T) {
	assert.Equal(t, "link", TransitionLabel(0))
	assert.Equal(t, "typed", TransitionLabel(1))
	assert.Equal(t, "reload", TransitionLabel(8))
	// qualifiers in the upper bits do not change the core type
	assert.Equal(t, "typed", TransitionLabel(0x10000001))
	assert.Equal(t, "unknown:37", TransitionLabel(37))
}

func TestAllBrowsers(t *testing.T) {
	browsers := AllBrowsers()
	assert.Contains(t, browsers, "chrome")
	assert.Contains(t, browsers, "opera_gx")
	assert.True(t, sortOrderOK(browsers))
}

func sortOrderOK(values []string) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}
