package main

import (
	"github.com/danmuck/useqlink/internal/bridge"
	"github.com/danmuck/useqlink/internal/transport"
	"github.com/spf13/pflag"
)

// deviceFlags override the file only when set on the command line.
type deviceFlags struct {
	transport string
	port      string
	baud      int
	tcpAddr   string
}

func addDeviceFlags(fs *pflag.FlagSet, f *deviceFlags) {
	def := bridge.DefaultServiceConfig()
	fs.StringVar(&f.transport, "transport", string(def.Transport), "device transport: serial|tcp")
	fs.StringVarP(&f.port, "port", "p", def.Serial.Name, "serial port of the uSEQ module")
	fs.IntVar(&f.baud, "baud", def.Serial.Baud, "serial baud rate")
	fs.StringVar(&f.tcpAddr, "tcp-addr", def.TCPAddr, "address of a serial-to-network bridge")
}

func (f *deviceFlags) apply(fs *pflag.FlagSet, cfg *bridge.ServiceConfig) error {
	if fs.Changed("transport") {
		kind, err := transport.ParseKind(f.transport)
		if err != nil {
			return err
		}
		cfg.Transport = kind
	}
	if fs.Changed("port") {
		cfg.Serial.Name = f.port
	}
	if fs.Changed("baud") {
		cfg.Serial.Baud = f.baud
	}
	if fs.Changed("tcp-addr") {
		cfg.TCPAddr = f.tcpAddr
	}
	return nil
}

type serveFlags struct {
	httpAddr    string
	reconnect   bool
	autoConnect bool
}

func addServeFlags(fs *pflag.FlagSet, f *serveFlags) {
	def := bridge.DefaultServiceConfig()
	fs.StringVar(&f.httpAddr, "http-addr", def.HTTPAddr, "HTTP API listen address")
	fs.BoolVar(&f.reconnect, "reconnect", def.Reconnect, "reopen the device after an unexpected disconnect")
	fs.BoolVar(&f.autoConnect, "auto-connect", def.AutoConnect, "open the device on startup")
}

func (f *serveFlags) apply(fs *pflag.FlagSet, cfg *bridge.ServiceConfig) {
	if fs.Changed("http-addr") {
		cfg.HTTPAddr = f.httpAddr
	}
	if fs.Changed("reconnect") {
		cfg.Reconnect = f.reconnect
	}
	if fs.Changed("auto-connect") {
		cfg.AutoConnect = f.autoConnect
	}
}
