package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir points the logger at a temporary directory and resets global state
func setupTestDir(t *testing.T) {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir := logDir
	origInitErr := initErr
	origSessionID := sessionID

	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}

	t.Cleanup(func() {
		_ = Close()
		sharedWriterMu.Lock()
		sharedWriter = nil
		sharedWriterMu.Unlock()

		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		sessionID = origSessionID
		sessionIDOnce = sync.Once{}
	})
}

func TestNewLogger(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test-component")
	require.NoError(t, err)

	assert.Equal(t, "test-component", logger.component)
	assert.NotEmpty(t, logger.SessionID())
	assert.NotEmpty(t, logger.LogPath())
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)

	logger.Printf("Test message %d", 123)
	logger.Debugf("Debug message")
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	content, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)

	logContent := string(content)
	expectedPatterns := []string{
		"[test] [INFO] Test message 123",
		"[test] [DEBUG] Debug message",
		"[test] [INFO] Info message",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
	}
	for _, pattern := range expectedPatterns {
		assert.Contains(t, logContent, pattern)
	}
}

func TestMultipleComponentsShareFile(t *testing.T) {
	setupTestDir(t)

	logger1, err := NewLogger("broker")
	require.NoError(t, err)
	logger2, err := NewLogger("transport")
	require.NoError(t, err)

	assert.Equal(t, logger1.SessionID(), logger2.SessionID())
	assert.Equal(t, logger1.LogPath(), logger2.LogPath())

	logger1.Infof("from broker")
	logger2.Infof("from transport")
	logger2.With("conn").Infof("from sub-component")

	content, err := os.ReadFile(logger1.LogPath())
	require.NoError(t, err)

	assert.Contains(t, string(content), "[broker] [INFO] from broker")
	assert.Contains(t, string(content), "[transport] [INFO] from transport")
	assert.Contains(t, string(content), "[transport/conn] [INFO] from sub-component")
}

func TestGetSessionID(t *testing.T) {
	setupTestDir(t)

	id1 := GetSessionID()
	id2 := GetSessionID()
	assert.Equal(t, id1, id2)
	assert.NotEmpty(t, id1)
}

func TestGetLogDirectory(t *testing.T) {
	setupTestDir(t)

	dir, err := GetLogDirectory()
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCloseIsIdempotent(t *testing.T) {
	setupTestDir(t)

	_, err := NewLogger("test")
	require.NoError(t, err)

	assert.NoError(t, Close())
	assert.NoError(t, Close())
}

func TestLogPathFormat(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)

	fileName := filepath.Base(logger.LogPath())
	assert.True(t, strings.HasSuffix(fileName, "-browsermcp.log"), "got %q", fileName)

	sessionPart := strings.TrimSuffix(fileName, "-browsermcp.log")
	assert.Contains(t, sessionPart, "-", "session ID should be a UUID")
}

func TestDiscardAndNilLogger(t *testing.T) {
	Discard().Infof("dropped %d", 1)

	var nilLogger *Logger
	assert.NotPanics(t, func() { nilLogger.Errorf("ignored") })
}
