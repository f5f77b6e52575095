//go:build darwin
// +build darwin

package ambient

import (
	"os/exec"
	"strconv"
	"strings"

	"AutoDailyReport/pkg/logger"
	"AutoDailyReport/pkg/models"
)

// airportPath macOS 自带的 WiFi 状态工具
const airportPath = "/System/Library/PrivateFrameworks/Apple80211.framework/Versions/Current/Resources/airport"

// darwinCollector macOS 实现：airport 读 SSID，CoreLocationCLI（若安装）读坐标
type darwinCollector struct{}

func newPlatformCollector() Collector {
	return darwinCollector{}
}

// Collect 采集当前环境快照
// 每个字段独立尽力采集，失败只记 Debug 日志
func (darwinCollector) Collect() models.ContextInfo {
	var info models.ContextInfo

	if ssid, err := currentSSID(); err == nil && ssid != "" {
		info.WifiSSID = ssid
	} else if err != nil {
		logger.Debug("读取 WiFi SSID 失败: %v", err)
	}

	if loc, err := currentLocation(); err == nil {
		info.Location = loc
	} else {
		logger.Debug("读取地理位置失败: %v", err)
	}

	return info
}

// currentSSID 从 airport -I 输出中提取 " SSID: xxx" 行
func currentSSID() (string, error) {
	out, err := exec.Command(airportPath, "-I").Output()
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(out), "\n") {
		trimmed := strings.TrimSpace(line)
		// 跳过 "BSSID:" 行, 只匹配 "SSID:"
		if strings.HasPrefix(trimmed, "SSID:") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "SSID:")), nil
		}
	}
	return "", nil
}

// currentLocation 通过 CoreLocationCLI（第三方工具, 可能未安装）读取坐标
// 输出格式: "35.6812 139.7671"
func currentLocation() (*models.Location, error) {
	out, err := exec.Command("CoreLocationCLI", "-once", "-format", "%latitude %longitude").Output()
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) != 2 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, err
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, err
	}

	return &models.Location{Latitude: lat, Longitude: lon}, nil
}
