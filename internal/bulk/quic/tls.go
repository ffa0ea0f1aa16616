package quic

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/dep2p/go-overlay/pkg/protocolids"
	"github.com/dep2p/go-overlay/pkg/types"
)

// newTLSConfigs 生成自签名证书以及服务端、客户端 TLS 配置
//
// 可靠流的身份由流头中的节点 ID 与连接 ID 预留共同约束，
// 证书只用于建立加密通道。
func newTLSConfigs(local types.NodeID) (server, client *tls.Config, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("生成密钥失败: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"DeP2P Overlay"},
			CommonName:   "overlay bulk " + hex.EncodeToString(local[:8]),
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour * 180),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("创建证书失败: %w", err)
	}
	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
	}

	server = &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{protocolids.BulkALPN},
		MinVersion:   tls.VersionTLS13,
	}
	client = &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{protocolids.BulkALPN},
		// 自签名证书，没有 CA 可以验证
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
	}
	return server, client, nil
}
