// Package systemd restarts units through systemctl after a recovery
// cycle. Units that are neither active nor enabled are left alone so a
// recovery never starts something the operator shut off.
package systemd
