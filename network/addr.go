// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package network

import (
	"net"
	"strconv"

	"github.com/emitter-io/address"
)

// LocalAddrs 返回本机非回环 IPv4 地址与 port 组合成的服务地址
func LocalAddrs(port int) []string {
	ifaddrs, _ := net.InterfaceAddrs()
	addrs := []string{}
	for _, a := range ifaddrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			continue
		}
		addrs = append(addrs, net.JoinHostPort(ipnet.IP.String(), strconv.Itoa(port)))
	}
	return addrs
}

// IsLocalhost 判断远端地址（host:port）是否来自本机
func IsLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return IsLocalhostIP(net.ParseIP(host))
}

// IsLocalhostIP 判断是否为本机IP（回环地址或本机的私有地址）
func IsLocalhostIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}

	privs, err := address.GetPrivate()
	if err != nil {
		return false
	}
	for _, priv := range privs {
		if priv.IP.Equal(ip) {
			return true
		}
	}
	return false
}
