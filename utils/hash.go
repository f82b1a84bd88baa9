package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// BytesMD5 保存结果中返回的存档校验和
func BytesMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
