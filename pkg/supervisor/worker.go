package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"combo/pkg/codec"
	"combo/pkg/combo"
	"combo/pkg/config"
	"combo/pkg/logger"
)

// 由 ExecSpawner 传给 worker 的文件描述符
const (
	statusFd   = 3
	controlFd  = 4
	listenerFd = 5
)

// RunWorker 以第 id 个 worker 的身份运行
//
// 执行流程：
//  1. 从 fd 5 取得 master 绑定的监听 socket，按 cfg.Server 创建 HTTP 处理器
//  2. 开始服务后通过 fd 3 通知 master（Listening）
//  3. 等待以下任一事件：
//     - fd 4 读到 EOF（master 请求断开或者 master 已经退出）：排空连接后返回 nil
//     - SIGTERM / SIGINT：排空连接后返回 nil
//     - SIGUSR2：通知 master（Reloading），排空连接后重新执行自身，PID 不变
//       排空期间再收到的 SIGUSR2 合并为这一次重新执行，收到终止信号则直接返回
//
// 注意事项：
//
//	重新执行成功时不会返回；新的进程会再次发送 Listening
func RunWorker(ctx context.Context, cfg *config.Config, id int) error {
	log := logger.Logging(fmt.Sprintf("worker%d", id))

	status := os.NewFile(statusFd, "status")
	control := os.NewFile(controlFd, "control")
	lnFile := os.NewFile(listenerFd, "listener")

	// 重新执行时这些描述符必须仍然打开，不能被 finalizer 关闭
	defer runtime.KeepAlive(status)
	defer runtime.KeepAlive(lnFile)

	ln, err := net.FileListener(lnFile)
	if err != nil {
		return fmt.Errorf("worker %d has no listener: %w", id, err)
	}

	handler, err := combo.NewServer(cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}

	writer, err := codec.NewMsgWriter(status)
	if err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR2, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(sigs)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	if err := writer.Write(&codec.WorkerMsg{Kind: codec.MsgListening, Pid: os.Getpid(), Addr: ln.Addr().String()}); err != nil {
		log.Warnf("Cannot notify master: %v", err)
	}
	log.Infof("Listening on %s", ln.Addr())

	disconnected := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, control)
		close(disconnected)
	}()

	reload := false
	select {
	case <-disconnected:
		log.Info("Disconnected from master")
	case sig := <-sigs:
		log.Infof("Received %v", sig)
		reload = sig == syscall.SIGUSR2
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("worker %d: %w", id, err)
	}

	if reload {
		if err := writer.Write(&codec.WorkerMsg{Kind: codec.MsgReloading, Pid: os.Getpid()}); err != nil {
			log.Warnf("Cannot notify master: %v", err)
		}
	}

	drain(srv, cfg.ShutdownTimeout, log.Warnf)

	if !reload {
		return nil
	}

	merged, stop := pendingSignals(sigs)
	if stop {
		log.Info("Terminated while draining for reload")
		return nil
	}
	if merged > 0 {
		log.Infof("Merged %d reload request(s) received while draining", merged)
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}

	log.Info("Reloading")
	return syscall.Exec(exe, os.Args, os.Environ())
}

// pendingSignals 取出排空期间收到的信号
//
// SIGUSR2 合并到即将进行的重新执行中，新进程会重新读取配置；
// 终止信号则取消重新执行。
func pendingSignals(sigs <-chan os.Signal) (merged int, stop bool) {
	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGUSR2 {
				merged++
			} else {
				stop = true
			}
		default:
			return merged, stop
		}
	}
}

func drain(srv *http.Server, timeout time.Duration, warnf func(string, ...any)) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		warnf("Shutdown: %v", err)
	}
}
