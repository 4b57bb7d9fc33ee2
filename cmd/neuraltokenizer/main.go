// neuraltokenizer trains, evaluates and runs boundary models that split text into sentences
// and tokens.
//
// Usage:
//
//	neuraltokenizer train --language=en --model=en.safetensors --train=train.json --validation=dev.json
//	neuraltokenizer evaluate --model=en.safetensors test.json
//	neuraltokenizer tokenize --model=en.safetensors document.pdf
//	neuraltokenizer serve --model=en.safetensors --addr=:8095
//	neuraltokenizer dataset convert train.json train.parquet
//
// Defaults are read from the environment (and a .env file): NEURALTOK_MODEL,
// NEURALTOK_LANGUAGE, NEURALTOK_ADDR and NEURALTOK_MAX_BODY_BYTES.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gomlx/go-neuraltokenizer/internal/config"
	"k8s.io/klog/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer klog.Flush()

	if err := newRootCmd(config.Load()).ExecuteContext(ctx); err != nil {
		klog.Flush()
		os.Exit(1)
	}
}
