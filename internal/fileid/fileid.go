// Package fileid derives stable content identifiers and on-disk names from
// remote file URLs. Identical logical files always map to the same identifier
// regardless of which transient query parameters (token, forcedownload,
// preview, offline) were attached on a given call.
package fileid

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Volatile URL attributes that never change the identity of a file.
var volatileAttributes = []*regexp.Regexp{
	regexp.MustCompile(`(\?|&)token=[A-Za-z0-9]*`),
	regexp.MustCompile(`(\?|&)forcedownload=[0-1]`),
	regexp.MustCompile(`(\?|&)preview=[A-Za-z0-9]+`),
	regexp.MustCompile(`(\?|&)offline=[0-1]`),
}

var (
	tokenPluginfileRe = regexp.MustCompile(`/tokenpluginfile\.php/[^/]+/`)
	hashSuffixRe      = regexp.MustCompile(`_[a-f0-9]{32}`)
	revisionRe        = regexp.MustCompile(`/content/([0-9]+)/`)
	themeImageCoreRe  = regexp.MustCompile(`/core/([^/]*)/`)
	extensionRe       = regexp.MustCompile(`^[a-z0-9]{1,5}$`)
	specialCharsRe    = regexp.MustCompile(`[#:/*?"<>|%]`)
)

const pluginfileMarker = "/webservice/pluginfile"

// ByURL derives the stable file identifier for a URL: the cleaned URL's
// guessed filename plus a content hash of the cleaned URL, so name guesses
// that collide still produce unique identifiers.
func ByURL(fileURL string) string {
	// Token-authenticated URLs identify the same file as their webservice
	// counterparts, normalize before hashing.
	u := tokenPluginfileRe.ReplaceAllString(fileURL, "/webservice/pluginfile.php/")

	// Updates to a file must not be detected as a different file.
	u = RemoveRevisionFromURL(u)

	u = decode(u)

	if strings.Contains(u, pluginfileMarker) {
		for _, re := range volatileAttributes {
			u = re.ReplaceAllString(u, "")
		}
	}

	// Keep a recognizable filename so users can identify downloaded files.
	filename := guessFilename(u)

	return addHashToFilename(u, filename)
}

// PackageDirName derives the directory name for a package identified by a
// URL. The guessed extension suffix exists for backwards compatibility with
// directories created by old versions.
func PackageDirName(fileURL string) string {
	u := RemoveRevisionFromURL(fileURL)
	extension := ""

	if strings.Contains(u, pluginfileMarker) {
		for _, re := range volatileAttributes {
			u = re.ReplaceAllString(u, "")
		}

		if candidate := GuessExtensionFromURL(u); candidate != "" && candidate != "php" {
			extension = "." + candidate
		}
	}

	return hashURL(u) + extension
}

// PackageID derives the key of a (component, componentId) package.
func PackageID(component, componentID string) string {
	sum := md5.Sum([]byte(component + "#" + componentID))

	return hex.EncodeToString(sum[:])
}

// DownloadKey identifies a single-file transfer by URL and destination, so
// the same file downloading to two different destinations does not collide.
func DownloadKey(fileURL, filePath string) string {
	sum := md5.Sum([]byte(fileURL + "###" + filePath))

	return hex.EncodeToString(sum[:])
}

// RevisionFromURL extracts the revision number from a pluginfile-style URL.
// Returns 0 when the URL carries no recognizable revision segment.
func RevisionFromURL(fileURL string) int64 {
	if pluginFileArgs(fileURL) == nil {
		return 0
	}

	matches := revisionRe.FindStringSubmatch(fileURL)
	if matches == nil {
		return 0
	}

	revision, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0
	}

	return revision
}

// RemoveRevisionFromURL normalizes the revision segment of a pluginfile URL
// to zero, preventing one stored file per revision.
func RemoveRevisionFromURL(fileURL string) string {
	if pluginFileArgs(fileURL) == nil {
		return fileURL
	}

	return revisionRe.ReplaceAllString(fileURL, "/content/0/")
}

// GuessExtensionFromURL returns the lowercase extension guessed from the last
// path segment of the URL, or empty when there is none.
func GuessExtensionFromURL(fileURL string) string {
	last := lastSegment(fileURL)

	dot := strings.LastIndex(last, ".")
	if dot < 0 {
		return ""
	}

	candidate := strings.ToLower(last[dot+1:])
	if !extensionRe.MatchString(candidate) {
		return ""
	}

	return candidate
}

// RemoveExtension strips a recognizable extension from a filename.
func RemoveExtension(filename string) string {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 {
		return filename
	}

	if !extensionRe.MatchString(strings.ToLower(filename[dot+1:])) {
		return filename
	}

	return filename[:dot]
}

// pluginFileArgs returns the path arguments following pluginfile.php, or nil
// when the URL is not a pluginfile URL. A pluginfile URL carries at least a
// context id, a component and a file area.
func pluginFileArgs(fileURL string) []string {
	idx := strings.Index(fileURL, "/pluginfile.php")
	if idx < 0 {
		return nil
	}

	relative := fileURL[idx+len("/pluginfile.php")+1:]
	if q := strings.IndexAny(relative, "?#"); q >= 0 {
		relative = relative[:q]
	}

	args := strings.Split(relative, "/")
	if len(args) < 3 {
		return nil
	}

	return args
}

// guessFilename guesses the name the target file should have from its URL.
// This is weak and unreliable, which is why a hash is appended afterwards.
func guessFilename(fileURL string) string {
	var filename string

	switch {
	case strings.Contains(fileURL, pluginfileMarker):
		// Prefer the explicit 'file' param when present.
		if file := queryParam(fileURL, "file"); file != "" {
			filename = file[strings.LastIndex(file, "/")+1:]
		} else {
			filename = lastSegment(fileURL)
		}
	case strings.Contains(fileURL, "gravatar.com"):
		filename = "gravatar_" + lastSegment(fileURL)
	case strings.Contains(fileURL, "/theme/image.php"):
		if matches := themeImageCoreRe.FindStringSubmatch(fileURL); matches != nil {
			filename = matches[1]
		}
		filename = "default_" + filename + "_" + lastSegment(fileURL)
	default:
		filename = lastSegment(fileURL)
	}

	// Keep fragment values as part of the name.
	var fragments []string
	if idx := strings.Index(filename, "#"); idx >= 0 {
		fragments = strings.Split(filename, "#")[1:]
		filename = filename[:idx]
	}

	filename = RemoveExtension(filename)

	if len(fragments) > 0 {
		filename += "_" + strings.Join(fragments, "_")
	}

	return specialCharsRe.ReplaceAllString(filename, "_")
}

// addHashToFilename appends the content hash of the cleaned URL to the
// filename, unless the filename already carries that exact hash (a file
// downloaded and re-uploaded through the app keeps its suffix).
func addHashToFilename(cleanURL, filename string) string {
	matches := hashSuffixRe.FindAllString(filename, -1)
	if len(matches) > 0 {
		hash := matches[len(matches)-1]
		treated := strings.Replace(cleanURL, hash, "", 1)

		if "_"+hashURL(treated) == hash {
			return filename
		}
	}

	return filename + "_" + hashURL(cleanURL)
}

func hashURL(u string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("url:%s", u)))

	return hex.EncodeToString(sum[:])
}

func decode(u string) string {
	decoded, err := url.PathUnescape(html.UnescapeString(u))
	if err != nil {
		return html.UnescapeString(u)
	}

	return decoded
}

func queryParam(fileURL, name string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return ""
	}

	return parsed.Query().Get(name)
}

func lastSegment(fileURL string) string {
	u := fileURL
	if q := strings.IndexAny(u, "?#"); q >= 0 {
		u = u[:q]
	}

	return u[strings.LastIndex(u, "/")+1:]
}
