package testtool

import (
	"net/http"
	_ "net/http/pprof" // register /debug/pprof handlers on DefaultServeMux

	"case_chat_service/pkg/config"
	"case_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof 非 production 環境才啟動 pprof
func StartPprof(addr string) {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Errorf("pprof server failed", err)
		}
	}()
}
