package mailbox

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"mailsync/models"
)

var canonicalFolders = []struct {
	substrings []string
	display    string
}{
	{[]string{"inbox"}, "Inbox"},
	{[]string{"sent"}, "Sent"},
	{[]string{"draft"}, "Drafts"},
	{[]string{"trash", "deleted"}, "Trash"},
	{[]string{"spam", "junk"}, "Spam"},
}

// ParseFolderLine extracts the folder name from one listing line.
// The last quoted token wins; unquoted lines fall back to the last
// whitespace-separated token. ok is false for malformed lines.
func ParseFolderLine(line string) (name string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	if strings.Contains(line, `"`) {
		parts := strings.Split(line, `"`)
		if len(parts) >= 3 {
			name = strings.TrimSpace(parts[len(parts)-2])
		}
	}
	if name == "" {
		fields := strings.Fields(line)
		name = strings.Trim(fields[len(fields)-1], `"`)
	}

	return name, name != ""
}

// DisplayName maps well-known server folder names onto their canonical label
func DisplayName(path string) string {
	lower := strings.ToLower(path)
	for _, folder := range canonicalFolders {
		for _, s := range folder.substrings {
			if strings.Contains(lower, s) {
				return folder.display
			}
		}
	}
	return path
}

// ListFolders lists, counts and labels every folder reachable through sess.
// Folders that cannot be parsed or selected are skipped. The result holds
// one entry per display name, Inbox first and the rest alphabetical.
func ListFolders(sess Session, log logrus.FieldLogger) ([]models.FolderInfo, error) {
	lines, err := sess.ListFolders()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(lines))
	folders := make([]models.FolderInfo, 0, len(lines))
	for _, line := range lines {
		path, ok := ParseFolderLine(line)
		if !ok {
			log.WithField("line", line).Debug("Skipping malformed folder line")
			continue
		}

		count, err := sess.Select(path, true)
		if err != nil {
			log.WithError(err).WithField("folder", path).Warn("Skipping folder that could not be selected")
			continue
		}

		display := DisplayName(path)
		if _, dup := seen[display]; dup {
			continue
		}
		seen[display] = struct{}{}

		folders = append(folders, models.FolderInfo{
			Name:         display,
			Path:         path,
			MessageCount: int(count),
		})
	}

	sort.SliceStable(folders, func(i, j int) bool {
		if folders[i].Name == "Inbox" || folders[j].Name == "Inbox" {
			return folders[i].Name == "Inbox" && folders[j].Name != "Inbox"
		}
		return folders[i].Name < folders[j].Name
	})

	return folders, nil
}
