package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"market-signals-go/config"
	"market-signals-go/infrastructure/logger"
	"market-signals-go/internal/engine"
	"market-signals-go/internal/replay"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径（只使用 instruments 和 log）")
	inPath := flag.String("in", "-", "输入 JSON lines 文件，- 表示 stdin")
	outPath := flag.String("out", "-", "输出特征帧文件，- 表示 stdout")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	// 帧可能写到 stdout，日志只写文件（未配置文件则丢弃）
	cfg.Log.Outputs = []string{"file"}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	defer lg.Close()

	eng, err := engine.New(engine.Config{Shards: 1, QueueSize: 1}, engine.Components{Logger: lg})
	if err != nil {
		log.Fatalf("创建引擎失败: %v", err)
	}
	if err := eng.ApplyConfig(cfg); err != nil {
		log.Fatalf("订阅合约失败: %v", err)
	}

	in := openFile(*inPath, os.Stdin, os.Open)
	defer in.Close()
	out := openFile(*outPath, os.Stdout, os.Create)
	defer out.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := replay.Run(ctx, in, out, eng, lg)
	summary, _ := json.Marshal(st)
	log.Printf("replay done: %s", summary)
	if err != nil {
		log.Printf("replay stopped: %v", err)
		os.Exit(1)
	}
}

func openFile(path string, std *os.File, fn func(string) (*os.File, error)) *os.File {
	if path == "-" {
		return std
	}
	f, err := fn(path)
	if err != nil {
		log.Fatalf("打开 %s 失败: %v", path, err)
	}
	return f
}
