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
	"sort"
	"strconv"
	"strings"
)

// BrowserInfo describes one Chromium-family browser's install layout.
// FlatProfile browsers (Opera) keep artifacts directly under the profile
// root instead of Default/Profile N subdirectories.
type BrowserInfo struct {
	DisplayName  string
	FlatProfile  bool
	ProfileRoots []string
}

// Browsers maps browser keys to their profile roots on Windows, macOS and
// Linux.
var Browsers = map[string]BrowserInfo{
	"chrome": {
		DisplayName: "Google Chrome",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Google/Chrome/User Data",
			"Users/*/Library/Application Support/Google/Chrome",
			"home/*/.config/google-chrome",
		},
	},
	"chrome_beta": {
		DisplayName: "Google Chrome Beta",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Google/Chrome Beta/User Data",
			"Users/*/Library/Application Support/Google/Chrome Beta",
			"home/*/.config/google-chrome-beta",
		},
	},
	"chrome_dev": {
		DisplayName: "Google Chrome Dev",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Google/Chrome Dev/User Data",
			"Users/*/Library/Application Support/Google/Chrome Dev",
			"home/*/.config/google-chrome-unstable",
		},
	},
	"chrome_canary": {
		DisplayName: "Google Chrome Canary",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Google/Chrome SxS/User Data",
			"Users/*/Library/Application Support/Google/Chrome Canary",
			"home/*/.config/google-chrome-canary",
		},
	},
	"chromium": {
		DisplayName: "Chromium",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Chromium/User Data",
			"Users/*/Library/Application Support/Chromium",
			"home/*/.config/chromium",
		},
	},
	"edge": {
		DisplayName: "Microsoft Edge",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Microsoft/Edge/User Data",
			"Users/*/Library/Application Support/Microsoft Edge",
			"home/*/.config/microsoft-edge",
		},
	},
	"edge_beta": {
		DisplayName: "Microsoft Edge Beta",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Microsoft/Edge Beta/User Data",
			"Users/*/Library/Application Support/Microsoft Edge Beta",
			"home/*/.config/microsoft-edge-beta",
		},
	},
	"edge_dev": {
		DisplayName: "Microsoft Edge Dev",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Microsoft/Edge Dev/User Data",
			"Users/*/Library/Application Support/Microsoft Edge Dev",
			"home/*/.config/microsoft-edge-dev",
		},
	},
	"edge_canary": {
		DisplayName: "Microsoft Edge Canary",
		ProfileRoots: []string{
			"Users/*/AppData/Local/Microsoft/Edge SxS/User Data",
			"Users/*/Library/Application Support/Microsoft Edge Canary",
			"home/*/.config/microsoft-edge-canary",
		},
	},
	"brave": {
		DisplayName: "Brave",
		ProfileRoots: []string{
			"Users/*/AppData/Local/BraveSoftware/Brave-Browser/User Data",
			"Users/*/Library/Application Support/BraveSoftware/Brave-Browser",
			"home/*/.config/BraveSoftware/Brave-Browser",
		},
	},
	"brave_beta": {
		DisplayName: "Brave Beta",
		ProfileRoots: []string{
			"Users/*/AppData/Local/BraveSoftware/Brave-Browser-Beta/User Data",
			"Users/*/Library/Application Support/BraveSoftware/Brave-Browser-Beta",
			"home/*/.config/BraveSoftware/Brave-Browser-Beta",
		},
	},
	"brave_nightly": {
		DisplayName: "Brave Nightly",
		ProfileRoots: []string{
			"Users/*/AppData/Local/BraveSoftware/Brave-Browser-Nightly/User Data",
			"Users/*/Library/Application Support/BraveSoftware/Brave-Browser-Nightly",
			"home/*/.config/BraveSoftware/Brave-Browser-Nightly",
		},
	},
	"opera": {
		DisplayName: "Opera",
		FlatProfile: true,
		ProfileRoots: []string{
			"Users/*/AppData/Roaming/Opera Software/Opera Stable",
			"Users/*/Library/Application Support/com.operasoftware.Opera",
			"home/*/.config/opera",
		},
	},
	"opera_gx": {
		DisplayName: "Opera GX",
		FlatProfile: true,
		ProfileRoots: []string{
			"Users/*/AppData/Roaming/Opera Software/Opera GX Stable",
			"Users/*/Library/Application Support/com.operasoftware.OperaGX",
			"home/*/.config/opera-gx",
		},
	},
}

// profilePatterns are the multi-profile subdirectories of non-flat browsers.
var profilePatterns = []string{"Default", "Profile *", "Guest Profile", "System Profile"}

// sessionArtifactPaths are session file locations relative to the profile
// directory. Chrome < 100 keeps named files, Chrome 100+ keeps timestamped
// files in a Sessions subdirectory.
var sessionArtifactPaths = []string{
	"Current Session",
	"Current Tabs",
	"Last Session",
	"Last Tabs",
	"Sessions/Session_*",
	"Sessions/Tabs_*",
}

// sessionFilenames are the filename-level discovery patterns, independent of
// the install path. They catch session files in embedded Chromium roots too.
var sessionFilenames = []string{
	"Current Session",
	"Last Session",
	"Current Tabs",
	"Last Tabs",
	"Session_*",
	"Tabs_*",
}

// AllBrowsers returns every supported browser key, sorted.
func AllBrowsers() []string {
	keys := make([]string, 0, len(Browsers))
	for key := range Browsers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// DisplayName returns the human-readable browser name.
func DisplayName(browser string) string {
	if info, ok := Browsers[browser]; ok {
		return info.DisplayName
	}
	if browser == "chromium_embedded" {
		return "Embedded Chromium"
	}
	return strings.Title(browser) // nolint:staticcheck
}

// SessionPatterns returns the full glob patterns for one browser's session
// files across all platforms and profiles.
func SessionPatterns(browser string) []string {
	info, ok := Browsers[browser]
	if !ok {
		return nil
	}

	var patterns []string
	for _, root := range info.ProfileRoots {
		if info.FlatProfile {
			for _, artifact := range sessionArtifactPaths {
				patterns = append(patterns, root+"/"+artifact)
			}
			continue
		}
		for _, profile := range profilePatterns {
			for _, artifact := range sessionArtifactPaths {
				patterns = append(patterns, root+"/"+profile+"/"+artifact)
			}
		}
	}
	return patterns
}

// DetectBrowser identifies the Chromium-family browser a path belongs to.
// Paths under one of the embeddedRoots return "chromium_embedded"; an
// unrecognized path returns "".
func DetectBrowser(path string, embeddedRoots []string) string { // nolint:gocyclo
	p := strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}

	switch {
	case strings.Contains(p, "/google/chrome sxs/") || strings.Contains(p, "/google/chrome canary/") || strings.Contains(p, "google-chrome-canary"):
		return "chrome_canary"
	case strings.Contains(p, "/google/chrome beta/") || strings.Contains(p, "google-chrome-beta"):
		return "chrome_beta"
	case strings.Contains(p, "/google/chrome dev/") || strings.Contains(p, "google-chrome-unstable"):
		return "chrome_dev"
	case strings.Contains(p, "/google/chrome/") || strings.Contains(p, "google-chrome"):
		return "chrome"
	case strings.Contains(p, "/microsoft/edge sxs/") || strings.Contains(p, "/microsoft/edge canary/") || strings.Contains(p, "microsoft-edge-canary"):
		return "edge_canary"
	case strings.Contains(p, "/microsoft/edge beta/") || strings.Contains(p, "microsoft-edge-beta"):
		return "edge_beta"
	case strings.Contains(p, "/microsoft/edge dev/") || strings.Contains(p, "microsoft-edge-dev"):
		return "edge_dev"
	case strings.Contains(p, "/microsoft/edge/") || strings.Contains(p, "microsoft-edge"):
		return "edge"
	case strings.Contains(p, "brave-browser-nightly"):
		return "brave_nightly"
	case strings.Contains(p, "brave-browser-beta"):
		return "brave_beta"
	case strings.Contains(p, "/bravesoftware/brave-browser/") || strings.Contains(p, "/brave-browser"):
		return "brave"
	case strings.Contains(p, "opera gx") || strings.Contains(p, "operagx") || strings.Contains(p, "com.operasoftware.operagx"):
		return "opera_gx"
	case strings.Contains(p, "/opera software/") || strings.Contains(p, "/.config/opera") || strings.Contains(p, "com.operasoftware.opera"):
		return "opera"
	case strings.Contains(p, "/chromium/") || strings.Contains(p, "appdata/local/chromium/user data") || strings.Contains(p, "/.config/chromium/"):
		return "chromium"
	}

	normalized := strings.Trim(p, "/")
	for _, root := range embeddedRoots {
		rootNorm := strings.Trim(strings.ToLower(strings.ReplaceAll(root, `\`, "/")), "/")
		if rootNorm == "" {
			continue
		}
		if normalized == rootNorm || strings.HasPrefix(normalized, rootNorm+"/") {
			return "chromium_embedded"
		}
	}

	return ""
}

var profileMarkers = map[string]bool{
	"default":        true,
	"guest profile":  true,
	"system profile": true,
}

// artifactMarkers are artifact path segments that sit directly under a
// profile directory. When one follows the profile root, the profile is the
// implicit Default.
var artifactMarkers = map[string]bool{
	"history": true, "cookies": true, "bookmarks": true, "preferences": true,
	"web data": true, "login data": true, "transportsecurity": true,
	"sync data": true, "media history": true, "extensions": true, "cache": true,
	"network": true, "local storage": true, "session storage": true,
	"indexeddb": true, "favicons": true, "top sites": true, "sessions": true,
	"current session": true, "last session": true, "current tabs": true, "last tabs": true,
}

var linuxProfileRoots = map[string]bool{
	"google-chrome": true, "google-chrome-beta": true, "google-chrome-unstable": true,
	"google-chrome-canary": true, "microsoft-edge": true, "microsoft-edge-beta": true,
	"microsoft-edge-dev": true, "microsoft-edge-canary": true, "chromium": true,
	"brave-browser": true, "brave-browser-beta": true, "brave-browser-nightly": true,
	"opera": true, "opera-gx": true,
}

// ProfileFromPath extracts the Chromium profile name from an artifact path,
// e.g. "Profile 1" from ".../User Data/Profile 1/History". Returns "" when
// no profile structure is recognizable.
func ProfileFromPath(path string) string { // nolint:gocyclo
	p := strings.ReplaceAll(path, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}

	parts := strings.Split(p, "/")
	lowerParts := make([]string, len(parts))
	for i, part := range parts {
		lowerParts[i] = strings.ToLower(part)
	}

	for i, part := range parts {
		if part != "User Data" || i+1 >= len(parts) {
			continue
		}
		candidate := parts[i+1]
		if artifactMarkers[strings.ToLower(candidate)] {
			return "Default"
		}
		return candidate
	}

	for i, lower := range lowerParts {
		if profileMarkers[lower] || strings.HasPrefix(lower, "profile ") {
			return parts[i]
		}
	}

	for i, lower := range lowerParts {
		if !linuxProfileRoots[lower] || i+1 >= len(parts) {
			continue
		}
		candidate := parts[i+1]
		if artifactMarkers[strings.ToLower(candidate)] {
			return "Default"
		}
		return candidate
	}

	for _, part := range parts {
		if part == "Opera Stable" || part == "Opera GX Stable" {
			return part
		}
	}
	for _, part := range parts {
		if part == "com.operasoftware.Opera" || part == "com.operasoftware.OperaGX" {
			return "Default"
		}
	}

	for _, lower := range lowerParts {
		if artifactMarkers[lower] {
			return "Default"
		}
	}

	return ""
}

// ClassifyFile maps a session file path to its session type. Handles both
// the legacy named files and the Chrome 100+ timestamped files.
func ClassifyFile(path string) string {
	parts := strings.Split(path, "/")
	filename := strings.ToLower(parts[len(parts)-1])

	switch {
	case strings.Contains(filename, "current session"):
		return "current_session"
	case strings.Contains(filename, "last session"):
		return "last_session"
	case strings.Contains(filename, "current tabs"):
		return "current_tabs"
	case strings.Contains(filename, "last tabs"):
		return "last_tabs"
	case strings.Contains(filename, "session restore"):
		return "session_restore"
	case strings.HasPrefix(filename, "session_"):
		return "session_timestamped"
	case strings.HasPrefix(filename, "tabs_"):
		return "tabs_timestamped"
	default:
		return "unknown"
	}
}

// TransitionLabel maps a Chromium page transition to a descriptive string.
// Only the core type in the lower 8 bits is considered.
func TransitionLabel(transition int) string {
	labels := map[int]string{
		0:  "link",
		1:  "typed",
		2:  "auto_bookmark",
		3:  "auto_subframe",
		4:  "manual_subframe",
		5:  "generated",
		6:  "auto_toplevel",
		7:  "form_submit",
		8:  "reload",
		9:  "keyword",
		10: "keyword_generated",
	}
	if label, ok := labels[transition&0xFF]; ok {
		return label
	}
	return "unknown:" + strconv.Itoa(transition)
}
