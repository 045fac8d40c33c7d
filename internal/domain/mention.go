package domain

import "regexp"

var (
	mentionPattern = regexp.MustCompile(`@(\w+)`)
	handlePattern  = regexp.MustCompile(`^\w+$`)
)

// ValidHandle reports whether handle can be matched by a mention.
func ValidHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}

// ParseMentions returns the distinct handles mentioned in text, in order of
// first appearance. It does not touch storage.
func ParseMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	handles := make([]string, 0, len(matches))
	for _, m := range matches {
		handle := m[1]
		if _, ok := seen[handle]; ok {
			continue
		}
		seen[handle] = struct{}{}
		handles = append(handles, handle)
	}
	return handles
}
