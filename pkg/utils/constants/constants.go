// Package constants
package constants

import (
	"fmt"
	"os"
)

const (
	DefaultLogLevel   = "info"
	DefaultDaemonName = "combo"
	DefaultMasterName = "master"
	DefaultServer     = "combo"
	DefaultPort       = 3000

	// 一年，单位秒
	DefaultMaxAge = 31536000

	EnvPrefix   = "COMBO"
	WorkerIDEnv = "COMBO_WORKER_ID"
)

var ComboHome = getHome()

var DefaultRunDir = fmt.Sprintf("%s/run", ComboHome)
var DaemonLogFilePath = getDaemonPath("log")

func getHome() string {
	return fmt.Sprintf("%s/.%s", os.Getenv("HOME"), DefaultDaemonName)
}

func getDaemonPath(suffix string) string {
	return fmt.Sprintf("%s/%s.%s", ComboHome, DefaultDaemonName, suffix)
}
