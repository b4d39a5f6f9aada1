package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type LogLevel int

const (
	LOG_ERROR LogLevel = iota
	LOG_WARN
	LOG_INFO
	LOG_DEBUG
)

type LogConfig struct {
	BasePath         string        // Caminho base para logs
	MaxFileSize      int64         // Tamanho máximo por arquivo (bytes)
	RetentionDays    int           // Dias para manter logs
	RotationInterval time.Duration // Intervalo de rotação
	EnableDebug      bool          // Habilitar logs de debug
	CleanupInterval  time.Duration // Intervalo entre limpezas

	// Espelhar eventos no stdout
	ConsoleOutput bool

	// Throttling de erros críticos repetidos
	ThrottleInterval   time.Duration
	ThrottleMaxRepeats int
}

// DefaultConfig retorna a configuração padrão do logger
func DefaultConfig() LogConfig {
	return LogConfig{
		BasePath:           "logs",
		MaxFileSize:        50 * 1024 * 1024, // 50MB
		RetentionDays:      7,
		RotationInterval:   24 * time.Hour,
		EnableDebug:        false,
		CleanupInterval:    1 * time.Hour,
		ConsoleOutput:      true,
		ThrottleInterval:   30 * time.Second,
		ThrottleMaxRepeats: 1000000,
	}
}

// SystemLogger grava eventos por categoria em arquivos diários.
// Todos os métodos aceitam receiver nil (não gravam nada).
type SystemLogger struct {
	config LogConfig

	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger

	errorFile *os.File
	warnFile  *os.File
	infoFile  *os.File
	debugFile *os.File

	mu             sync.RWMutex
	lastRotation   time.Time
	cleanupCancel  context.CancelFunc
	isShuttingDown bool
	shutdownChan   chan struct{}

	throttleMu  sync.Mutex
	lastLog     map[string]time.Time // key -> último registro
	repeatCount map[string]int       // key -> repetições silenciadas

	now func() time.Time
}

// NewSystemLoggerWithConfig cria um logger com configuração customizada
func NewSystemLoggerWithConfig(config LogConfig) (*SystemLogger, error) {
	sl := &SystemLogger{
		config:       config,
		lastRotation: time.Now(),
		shutdownChan: make(chan struct{}),
		lastLog:      make(map[string]time.Time),
		repeatCount:  make(map[string]int),
		now:          time.Now,
	}

	if err := sl.createLogDirectories(); err != nil {
		return nil, fmt.Errorf("erro ao criar diretórios de log: %w", err)
	}

	if err := sl.initializeLogFiles(); err != nil {
		return nil, fmt.Errorf("erro ao inicializar arquivos de log: %w", err)
	}

	if config.CleanupInterval > 0 {
		sl.startCleanupRoutine()
	}

	return sl, nil
}

func (sl *SystemLogger) createLogDirectories() error {
	for _, category := range categories {
		dir := filepath.Join(sl.config.BasePath, category)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("erro ao criar diretório %s: %w", dir, err)
		}
	}
	return nil
}

var categories = []string{"errors", "system", "warnings", "debug"}

func (sl *SystemLogger) openCategory(category, prefix, dateStr string) (*os.File, error) {
	path := filepath.Join(sl.config.BasePath, category, fmt.Sprintf("%s_%s.log", prefix, dateStr))
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

func (sl *SystemLogger) initializeLogFiles() error {
	dateStr := time.Now().Format("2006-01-02")

	var err error

	if sl.errorFile, err = sl.openCategory("errors", "errors", dateStr); err != nil {
		return fmt.Errorf("erro ao criar arquivo de erro: %w", err)
	}
	sl.errorLogger = log.New(sl.errorFile, "[ERROR] ", log.LstdFlags)

	if sl.warnFile, err = sl.openCategory("warnings", "warnings", dateStr); err != nil {
		return fmt.Errorf("erro ao criar arquivo de warning: %w", err)
	}
	sl.warnLogger = log.New(sl.warnFile, "[WARN]  ", log.LstdFlags)

	if sl.infoFile, err = sl.openCategory("system", "system", dateStr); err != nil {
		return fmt.Errorf("erro ao criar arquivo de info: %w", err)
	}
	sl.infoLogger = log.New(sl.infoFile, "[INFO]  ", log.LstdFlags)

	if sl.config.EnableDebug {
		if sl.debugFile, err = sl.openCategory("debug", "debug", dateStr); err != nil {
			return fmt.Errorf("erro ao criar arquivo de debug: %w", err)
		}
		sl.debugLogger = log.New(sl.debugFile, "[DEBUG] ", log.LstdFlags|log.Lmicroseconds)
	}

	return nil
}

func (sl *SystemLogger) startCleanupRoutine() {
	ctx, cancel := context.WithCancel(context.Background())
	sl.cleanupCancel = cancel

	go func() {
		ticker := time.NewTicker(sl.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sl.shutdownChan:
				return
			case <-ticker.C:
				sl.performMaintenance()
			}
		}
	}()
}

func (sl *SystemLogger) performMaintenance() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.isShuttingDown {
		return
	}

	if time.Since(sl.lastRotation) >= sl.config.RotationInterval {
		if err := sl.rotateLogsUnsafe(); err != nil && sl.config.ConsoleOutput {
			fmt.Printf("Erro na rotação de logs: %v\n", err)
		}
	}

	sl.checkFileSizes()

	if err := sl.cleanupOldLogs(); err != nil && sl.config.ConsoleOutput {
		fmt.Printf("Erro na limpeza de logs: %v\n", err)
	}
}

// checkFileSizes força rotação quando algum arquivo passa do limite
func (sl *SystemLogger) checkFileSizes() {
	for _, file := range sl.activeFiles() {
		stat, err := file.Stat()
		if err != nil {
			continue
		}
		if stat.Size() >= sl.config.MaxFileSize {
			if sl.config.ConsoleOutput {
				fmt.Printf("📋 Arquivo de log excedeu %dMB - forçando rotação\n", sl.config.MaxFileSize/1024/1024)
			}
			sl.rotateLogsUnsafe()
			return
		}
	}
}

// rotateLogsUnsafe rotaciona os logs (deve ser chamado com lock)
func (sl *SystemLogger) rotateLogsUnsafe() error {
	sl.closeFilesUnsafe()

	if err := sl.initializeLogFiles(); err != nil {
		return err
	}

	sl.lastRotation = time.Now()
	sl.infoLogger.Printf("LOG_ROTATION_COMPLETED: timestamp=%s", sl.lastRotation.Format(time.RFC3339))
	return nil
}

// cleanupOldLogs remove arquivos mais antigos que a retenção
func (sl *SystemLogger) cleanupOldLogs() error {
	cutoff := time.Now().AddDate(0, 0, -sl.config.RetentionDays)
	active := make(map[string]bool)
	for _, f := range sl.activeFiles() {
		active[f.Name()] = true
	}

	removed := 0
	for _, category := range categories {
		categoryPath := filepath.Join(sl.config.BasePath, category)
		entries, err := os.ReadDir(categoryPath)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}

			filePath := filepath.Join(categoryPath, entry.Name())
			if active[filePath] {
				continue
			}

			if err := os.Remove(filePath); err != nil {
				sl.errorLogger.Printf("CLEANUP_ERROR: file=%s error=%v", filePath, err)
				continue
			}
			removed++
			sl.infoLogger.Printf("LOG_CLEANUP: removed=%s category=%s", entry.Name(), category)
		}
	}

	if removed > 0 && sl.config.ConsoleOutput {
		fmt.Printf("🧹 Limpeza automática: %d arquivos antigos removidos\n", removed)
	}
	return nil
}

func (sl *SystemLogger) activeFiles() []*os.File {
	var files []*os.File
	for _, f := range []*os.File{sl.errorFile, sl.warnFile, sl.infoFile, sl.debugFile} {
		if f != nil {
			files = append(files, f)
		}
	}
	return files
}

// closeFilesUnsafe fecha arquivos (deve ser chamado com lock)
func (sl *SystemLogger) closeFilesUnsafe() {
	for _, f := range sl.activeFiles() {
		f.Close()
	}
	sl.errorFile, sl.warnFile, sl.infoFile, sl.debugFile = nil, nil, nil, nil
}

// write grava na categoria e, opcionalmente, no console
func (sl *SystemLogger) write(level LogLevel, console, format string, args ...interface{}) {
	if sl == nil {
		return
	}

	sl.mu.RLock()
	var target *log.Logger
	switch level {
	case LOG_ERROR:
		target = sl.errorLogger
	case LOG_WARN:
		target = sl.warnLogger
	case LOG_INFO:
		target = sl.infoLogger
	case LOG_DEBUG:
		target = sl.debugLogger
	}
	if target != nil && !sl.isShuttingDown {
		target.Printf(format, args...)
	}
	sl.mu.RUnlock()

	if sl.config.ConsoleOutput && console != "" {
		fmt.Println(console)
	}
}

// ====================== EVENTOS ======================

func (sl *SystemLogger) LogSystemStarted(version string, emitters int) {
	sl.write(LOG_INFO, fmt.Sprintf("🚀 Simulador PDW iniciado (v%s, %d emissores)", version, emitters),
		"SYSTEM_STARTED: version=%s emitters=%d user=%s", version, emitters, getCurrentUser())
}

func (sl *SystemLogger) LogSystemShutdown(uptime time.Duration) {
	sl.write(LOG_INFO, fmt.Sprintf("🛑 Sistema encerrado - uptime: %v", uptime),
		"SYSTEM_SHUTDOWN: uptime=%v", uptime)
}

func (sl *SystemLogger) LogEngineStarted(emitters int, tick time.Duration, lossProbability, thresholdDB float64) {
	sl.write(LOG_INFO, fmt.Sprintf("📡 Motor PDW rodando: %d emissores, tick %v", emitters, tick),
		"ENGINE_STARTED: emitters=%d tick=%v loss_probability=%.3f threshold_db=%.1f",
		emitters, tick, lossProbability, thresholdDB)
}

func (sl *SystemLogger) LogClientConnected(clientID string, total int) {
	sl.write(LOG_INFO, fmt.Sprintf("🔗 Cliente conectado %s (total %d)", clientID, total),
		"CLIENT_CONNECTED: id=%s total=%d", clientID, total)
}

func (sl *SystemLogger) LogClientDisconnected(clientID string, total int, reason error) {
	sl.write(LOG_WARN, fmt.Sprintf("🔌 Cliente desconectado %s (total %d)", clientID, total),
		"CLIENT_DISCONNECTED: id=%s total=%d reason=%v", clientID, total, reason)
}

func (sl *SystemLogger) LogSnapshotSaved(filename string, pulses int) {
	sl.write(LOG_INFO, fmt.Sprintf("💾 Snapshot salvo: %s (%d pulsos)", filename, pulses),
		"SNAPSHOT_SAVED: file=%s pulse_count=%d", filename, pulses)
}

func (sl *SystemLogger) LogNATSConnected(url string) {
	sl.write(LOG_INFO, fmt.Sprintf("📨 NATS conectado em %s", url),
		"NATS_CONNECTED: url=%s", url)
}

func (sl *SystemLogger) LogNATSDisconnected(err error) {
	sl.write(LOG_WARN, fmt.Sprintf("📨 NATS desconectado: %v", err),
		"NATS_DISCONNECTED: error=%v", err)
}

func (sl *SystemLogger) LogStreamStatus(batches, pulses int64, clients int) {
	sl.write(LOG_INFO, "",
		"STREAM_STATUS: batches=%d pulses=%d clients=%d", batches, pulses, clients)
}

func (sl *SystemLogger) LogConfigurationChange(component, change string) {
	sl.write(LOG_INFO, fmt.Sprintf("CONFIG_CHANGE: component=%s change=%s", component, change),
		"CONFIG_CHANGE: component=%s change=%s", component, change)
}

// LogWarning registra um aviso genérico de componente
func (sl *SystemLogger) LogWarning(component, message string) {
	sl.write(LOG_WARN, fmt.Sprintf("⚠️  %s: %s", component, message),
		"WARNING: component=%s message=%s", component, message)
}

// LogDebug grava apenas com debug habilitado
func (sl *SystemLogger) LogDebug(component, message string) {
	if sl == nil || !sl.config.EnableDebug {
		return
	}
	sl.write(LOG_DEBUG, "", "DEBUG: component=%s message=%s", component, message)
}

// LogCriticalError agrupa erros idênticos dentro da janela de throttling
// e informa as repetições quando a janela expira.
func (sl *SystemLogger) LogCriticalError(component, operation string, err error) {
	if sl == nil || err == nil {
		return
	}

	key := fmt.Sprintf("%s|%s|%s", component, operation, err.Error())
	now := sl.now()

	sl.throttleMu.Lock()
	last, exists := sl.lastLog[key]
	if exists && now.Sub(last) < sl.config.ThrottleInterval {
		count := sl.repeatCount[key]
		if count >= sl.config.ThrottleMaxRepeats {
			sl.repeatCount[key] = 0
			sl.lastLog[key] = now
		} else {
			sl.repeatCount[key] = count + 1
		}
		sl.throttleMu.Unlock()
		return
	}

	if repeats := sl.repeatCount[key]; repeats > 0 {
		err = fmt.Errorf("%v (repeated %d times since %s)", err, repeats, last.Format(time.RFC3339))
		sl.repeatCount[key] = 0
	}
	sl.lastLog[key] = now
	sl.throttleMu.Unlock()

	sl.write(LOG_ERROR, fmt.Sprintf("🔥 ERRO CRÍTICO em %s.%s: %v", component, operation, err),
		"CRITICAL_ERROR: component=%s operation=%s error=%v", component, operation, err)
}

// GetLogStats retorna tamanhos e contagens dos arquivos de log
func (sl *SystemLogger) GetLogStats() map[string]interface{} {
	stats := make(map[string]interface{})
	if sl == nil {
		return stats
	}

	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if sl.errorFile != nil {
		if stat, err := sl.errorFile.Stat(); err == nil {
			stats["error_file_size"] = stat.Size()
		}
	}
	if sl.infoFile != nil {
		if stat, err := sl.infoFile.Stat(); err == nil {
			stats["info_file_size"] = stat.Size()
		}
	}

	for _, category := range categories {
		if files, err := os.ReadDir(filepath.Join(sl.config.BasePath, category)); err == nil {
			stats[fmt.Sprintf("%s_file_count", category)] = len(files)
		}
	}

	stats["last_rotation"] = sl.lastRotation
	return stats
}

// ForceRotation força a rotação dos logs (SIGHUP)
func (sl *SystemLogger) ForceRotation() error {
	if sl == nil {
		return nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.isShuttingDown {
		return fmt.Errorf("logger is shutting down")
	}
	return sl.rotateLogsUnsafe()
}

// Close fecha o logger com segurança
func (sl *SystemLogger) Close() {
	if sl == nil {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.isShuttingDown {
		return
	}
	sl.isShuttingDown = true

	if sl.cleanupCancel != nil {
		sl.cleanupCancel()
	}
	close(sl.shutdownChan)

	if sl.infoLogger != nil {
		sl.infoLogger.Printf("LOGGER_SHUTDOWN: timestamp=%s", time.Now().Format(time.RFC3339))
	}

	sl.closeFilesUnsafe()
}

func getCurrentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "unknown"
}
