package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogInfo 服務日誌實例
type LogInfo struct {
	log       *zap.Logger
	debugMode atomic.Bool
}

var (
	// Log 全域日誌實例, 由 Initialize 或 SetNewNop 設定
	Log *LogInfo
)

// Initialize builds the service logger. INFO..ERROR go to stdout and a daily
// JSON file under logDir, WARN and DEBUG go to the console only. DEBUG output
// is gated by SetDebugMode.
func Initialize(serviceName, logDir string) *LogInfo {
	l := new(LogInfo)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		panic(fmt.Sprintf("Failed to create log directory: %v", err))
	}

	fileName := filepath.Join(logDir, fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02")))

	jsonCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.NewMultiWriteSyncer(
			zapcore.AddSync(os.Stdout),
			getFileWriter(fileName),
		),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zapcore.InfoLevel && level != zapcore.WarnLevel
		}),
	)

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			switch level {
			case zapcore.WarnLevel:
				return true
			case zapcore.DebugLevel:
				return l.debugMode.Load()
			}
			return false
		}),
	)

	l.log = zap.New(
		zapcore.NewTee(jsonCore, consoleCore),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("service", serviceName)),
	)
	Log = l

	return l
}

// SetNewNop installs a logger that discards everything. Used by tests.
func SetNewNop() *LogInfo {
	Log = &LogInfo{log: zap.NewNop()}
	return Log
}

func getFileWriter(fileName string) zapcore.WriteSyncer {
	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(fmt.Sprintf("Failed to open or create log file: %v", err))
	}
	return zapcore.AddSync(file)
}

// SetDebugMode 開關 DEBUG 輸出
func (l *LogInfo) SetDebugMode(status bool) {
	l.debugMode.Store(status)
}

// DebugMode report current debug flag
func (l *LogInfo) DebugMode() bool {
	return l.debugMode.Load()
}

// Info 輸出 INFO 級別日誌
func (l *LogInfo) Info(msg string, fields ...zap.Field) {
	l.log.Info(msg, fields...)
}

// Infof 輸出 INFO 級別日誌並附帶一個值
func (l *LogInfo) Infof(msg string, info interface{}, fields ...zap.Field) {
	l.log.Info(fmt.Sprintf("%s %v", msg, info), fields...)
}

// Error 輸出 ERROR 級別日誌
func (l *LogInfo) Error(msg string, fields ...zap.Field) {
	l.log.Error(msg, fields...)
}

// Errorf 輸出 ERROR 級別日誌並附帶錯誤
func (l *LogInfo) Errorf(msg string, err error, fields ...zap.Field) {
	l.log.Error(msg, append(fields, zap.Error(err))...)
}

// Debug 輸出 DEBUG 級別日誌
func (l *LogInfo) Debug(msg string, fields ...zap.Field) {
	l.log.Debug(msg, fields...)
}

// Warn 輸出 WARN 級別日誌
func (l *LogInfo) Warn(msg string, fields ...zap.Field) {
	l.log.Warn(msg, fields...)
}

// Sync flush buffered entries
func (l *LogInfo) Sync() {
	if err := l.log.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}

// Fatal logs at ERROR, flushes and exits the process.
func (l *LogInfo) Fatal(msg string, fields ...zap.Field) {
	l.log.Error(msg, fields...)
	_ = l.log.Sync()
	os.Exit(1)
}
