package systemd

import "github.com/coreos/go-systemd/v22/daemon"

// NotifyReady tells the service manager startup finished. It reports false
// when not running under systemd (no NOTIFY_SOCKET).
func NotifyReady() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

func NotifyStopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

func NotifyReloading() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReloading) }
