// Package pidfile 管理运行目录中每个角色的 PID 文件
//
// 文件布局：
//
//	<runDir>/master.pid     master 进程（名称可配置）
//	<runDir>/worker<N>.pid  第 N 个 worker 进程
//
// 文件内容只有十进制 PID，没有换行和其他元数据。
// PID 文件不是互斥锁：进程崩溃后残留的文件是预期状态，读取方需要容忍。
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrNotFound 表示 PID 文件不存在，通常意味着对应的进程没有运行
var ErrNotFound = errors.New("pidfile not found")

var workerPattern = regexp.MustCompile(`^worker\d+\.pid$`)

type notFoundError struct {
	path string
	err  error
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("pidfile %s not found", e.path)
}

func (e *notFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *notFoundError) Unwrap() error {
	return e.err
}

// Store reads and writes pidfiles under one run directory.
type Store struct {
	dir        string
	masterName string
}

func NewStore(dir, masterName string) *Store {
	if masterName == "" {
		masterName = "master"
	}

	return &Store{
		dir:        dir,
		masterName: masterName,
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) MasterName() string {
	return s.masterName
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".pid")
}

// WorkerName 返回第 id 个 worker 的 PID 文件名（不含扩展名）
func WorkerName(id int) string {
	return "worker" + strconv.Itoa(id)
}

// EnsureDir 递归创建运行目录，目录已存在时直接返回
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create run directory %s: %w", s.dir, err)
	}

	return nil
}

// Write 以整文件覆盖的方式写入 PID
//
// 参数：
//
//	name: 角色名，例如 "master"、"worker1"
//	pid: 进程 PID
//
// 注意事项：
//
//	是否把写入失败视为致命错误由调用方决定：
//	master 启动时写自己的 PID 文件失败必须中止，worker 的 PID 文件只记录日志
func (s *Store) Write(name string, pid int) error {
	if err := os.WriteFile(s.Path(name), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}

	return nil
}

// Read 读取指定角色的 PID
//
// 返回：
//
//	int: PID
//	error: 文件不存在时满足 errors.Is(err, ErrNotFound)；内容无法解析或其他读取错误原样包装返回
func (s *Store) Read(name string) (int, error) {
	path := s.Path(name)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, &notFoundError{path: path, err: err}
		}
		return 0, fmt.Errorf("read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q in %s", strings.TrimSpace(string(data)), path)
	}

	return pid, nil
}

func (s *Store) ReadMaster() (int, error) {
	return s.Read(s.masterName)
}

// ListWorkerPidFiles 按字典序返回所有 worker<N>.pid 文件名，运行目录不存在时返回空列表
func (s *Store) ListWorkerPidFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !workerPattern.MatchString(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}

	return files, nil
}

// Remove 删除 PID 文件，文件已经不存在视为成功
func (s *Store) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pidfile: %w", err)
	}

	return nil
}

// RemoveWorkerPidFiles 删除所有 worker 的 PID 文件，返回合并后的错误
func (s *Store) RemoveWorkerPidFiles() error {
	files, err := s.ListWorkerPidFiles()
	if err != nil {
		return err
	}

	var errs []error
	for _, f := range files {
		if err := s.Remove(strings.TrimSuffix(f, ".pid")); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
