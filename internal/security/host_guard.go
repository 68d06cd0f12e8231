// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"strings"
)

// privateNetworks は本番環境で通報URLのホストとして拒否するネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var privateNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927)
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in privateNetworks: %s: %v", cidr, err))
		}
		privateNetworks = append(privateNetworks, *network)
	}
}

// localHostnames はループバックとして扱うホスト名。
var localHostnames = []string{
	"localhost",
}

// IsPrivateHost はホストがプライベート・ループバックのアドレスまたはホスト名かを判定する。
// DNS解決は行わず、IPリテラルとホスト名の静的な検証のみを行う。
// host は url.URL.Hostname() の戻り値（ポートと角括弧を含まない）を想定する。
func IsPrivateHost(host string) bool {
	if host == "" {
		return false
	}

	if ip := net.ParseIP(host); ip != nil {
		return isPrivateIP(ip)
	}

	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	for _, h := range localHostnames {
		if lower == h || strings.HasSuffix(lower, "."+h) {
			return true
		}
	}
	return false
}

// isPrivateIP はIPアドレスが拒否対象のネットワーク範囲に含まれるかを検証する。
func isPrivateIP(ip net.IP) bool {
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
