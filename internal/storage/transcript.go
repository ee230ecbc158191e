// Package storage persists conversation transcripts as JSON files, one
// directory per user.
package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptMessage is one exchanged utterance.
type TranscriptMessage struct {
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content,omitempty"`
}

// TranscriptInfo summarizes a stored transcript for listings.
type TranscriptInfo struct {
	UID           string            `json:"uid"`
	LatestMessage TranscriptMessage `json:"latest_message"`
	Timestamp     string            `json:"timestamp"`
}

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	roleMetadata  = "metadata"
)

// CreateTranscript starts a new transcript for the user and returns its uid.
func CreateTranscript(baseDir string, userID string) (string, error) {
	dir, err := ensureUserDir(baseDir, userID)
	if err != nil {
		return "", err
	}
	uid := time.Now().Format("2006-01-02_15-04-05") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	path := filepath.Join(dir, uid+".json")
	meta := []TranscriptMessage{{Role: roleMetadata, Timestamp: time.Now().Format(time.RFC3339)}}
	if err := writeTranscript(path, meta); err != nil {
		return "", err
	}
	return uid, nil
}

// AppendMessage adds one message to an existing transcript.
func AppendMessage(baseDir string, userID string, transcriptUID string, msg TranscriptMessage) error {
	path, err := transcriptPath(baseDir, userID, transcriptUID)
	if err != nil {
		return err
	}
	messages, err := readTranscript(path)
	if err != nil {
		return err
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().Format(time.RFC3339)
	}
	messages = append(messages, msg)
	return writeTranscript(path, messages)
}

// GetTranscript returns the conversation with metadata entries stripped.
func GetTranscript(baseDir string, userID string, transcriptUID string) ([]TranscriptMessage, error) {
	path, err := transcriptPath(baseDir, userID, transcriptUID)
	if err != nil {
		return nil, err
	}
	messages, err := readTranscript(path)
	if err != nil {
		return nil, err
	}
	filtered := []TranscriptMessage{}
	for _, msg := range messages {
		if msg.Role == roleMetadata {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered, nil
}

// DeleteTranscript removes a stored transcript.
func DeleteTranscript(baseDir string, userID string, transcriptUID string) bool {
	path, err := transcriptPath(baseDir, userID, transcriptUID)
	if err != nil {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		return false
	}
	return true
}

// ListTranscripts returns the user's transcripts, newest first.
func ListTranscripts(baseDir string, userID string) []TranscriptInfo {
	list := []TranscriptInfo{}
	dir, err := ensureUserDir(baseDir, userID)
	if err != nil {
		return list
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return list
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		uid := strings.TrimSuffix(entry.Name(), ".json")
		messages, err := readTranscript(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var latest *TranscriptMessage
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == roleMetadata {
				continue
			}
			msg := messages[i]
			latest = &msg
			break
		}
		if latest == nil {
			continue
		}
		list = append(list, TranscriptInfo{
			UID:           uid,
			LatestMessage: *latest,
			Timestamp:     latest.Timestamp,
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Timestamp > list[j].Timestamp
	})

	return list
}

// SafeUserDir maps an arbitrary user id onto a filesystem-safe directory
// name. Empty or unsafe ids collapse to "anonymous".
func SafeUserDir(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "anonymous"
	}
	var b strings.Builder
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "anonymous"
	}
	return out
}

func ensureUserDir(baseDir string, userID string) (string, error) {
	if baseDir == "" {
		return "", errors.New("transcript base dir is empty")
	}
	path := filepath.Join(baseDir, SafeUserDir(userID))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

func transcriptPath(baseDir string, userID string, transcriptUID string) (string, error) {
	if baseDir == "" {
		return "", errors.New("transcript base dir is empty")
	}
	if !safeNamePattern.MatchString(transcriptUID) {
		return "", errors.New("invalid transcript uid")
	}
	return filepath.Join(baseDir, SafeUserDir(userID), transcriptUID+".json"), nil
}

func readTranscript(path string) ([]TranscriptMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var messages []TranscriptMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func writeTranscript(path string, messages []TranscriptMessage) error {
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
