package loc

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// BuildURL merges params into the base URL's query string, preserving every
// pre-existing parameter and overriding on key collision.
func BuildURL(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	query := u.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// DefaultImageKeys are the document keys under which extension-less URL
// values are still treated as image candidates.
var DefaultImageKeys = map[string]bool{
	"image":     true,
	"images":    true,
	"image_url": true,
	"thumb":     true,
	"thumbnail": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
}

// FindImageURLs walks an arbitrarily nested decoded JSON document and
// collects image URL candidates in a deterministic order. Any http(s) string
// whose path carries an image extension counts, wherever it sits; strings
// under one of the configured keys count even without an extension. The
// upstream records have no fixed schema, so this stays a heuristic.
func FindImageURLs(doc interface{}, keys map[string]bool) []string {
	if keys == nil {
		keys = DefaultImageKeys
	}

	seen := make(map[string]bool)
	var found []string

	var walk func(v interface{}, underKey bool)
	walk = func(v interface{}, underKey bool) {
		switch val := v.(type) {
		case Record:
			walk(map[string]interface{}(val), underKey)
		case map[string]interface{}:
			// Object keys are visited in sorted order so that discovery
			// order is stable across runs.
			names := make([]string, 0, len(val))
			for k := range val {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				walk(val[k], underKey || keys[strings.ToLower(k)])
			}
		case []interface{}:
			for _, item := range val {
				walk(item, underKey)
			}
		case string:
			if isImageURL(val) || (underKey && isHTTPURL(val)) {
				if !seen[val] {
					seen[val] = true
					found = append(found, val)
				}
			}
		}
	}
	walk(doc, false)

	return found
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isImageURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return imageExtensions[ext]
}

const (
	serviceSegment = "/service/"
	masterSegment  = "/master/"
	serviceSuffix  = "r.jpg"
	masterSuffix   = "u.tif"
)

// MasterURL maps a service-tier image URL to its master-tier counterpart by
// the fixed naming convention (/service/…r.jpg → /master/…u.tif). The
// substitution is purely textual; when the URL does not match the pattern it
// is returned unchanged with ok=false.
func MasterURL(serviceURL string) (string, bool) {
	if !strings.Contains(serviceURL, serviceSegment) || !strings.HasSuffix(serviceURL, serviceSuffix) {
		return serviceURL, false
	}

	upgraded := strings.Replace(serviceURL, serviceSegment, masterSegment, 1)
	upgraded = strings.TrimSuffix(upgraded, serviceSuffix) + masterSuffix
	return upgraded, true
}

// MetadataStem picks the filename stem for a record's metadata document from
// its image URLs: the master-tier name wins over the service-tier one, and
// the trailing resolution marker is stripped. ok is false when no image URL
// yields a usable stem.
func MetadataStem(urls []string) (string, bool) {
	var tiered, plain string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		name := path.Base(u.Path)
		switch {
		case strings.HasSuffix(name, masterSuffix) && len(name) > len(masterSuffix):
			return strings.TrimSuffix(name, masterSuffix), true
		case strings.HasSuffix(name, serviceSuffix) && len(name) > len(serviceSuffix):
			if tiered == "" {
				tiered = strings.TrimSuffix(name, serviceSuffix)
			}
		default:
			if plain == "" {
				if stem := strings.TrimSuffix(name, path.Ext(name)); stem != "" && stem != "." && stem != "/" {
					plain = stem
				}
			}
		}
	}

	if tiered != "" {
		return tiered, true
	}
	if plain != "" {
		return plain, true
	}
	return "", false
}
