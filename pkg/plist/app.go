package plist

import (
	"bytes"
	"fmt"

	"github.com/blacktop/go-plist"
)

// AppInfo is the Info.plist object found in .app and .framework bundles
// https://developer.apple.com/library/archive/documentation/General/Reference/InfoPlistKeyReference/Introduction/Introduction.html#//apple_ref/doc/uid/TP40009248-SW1
type AppInfo struct {
	CFBundleDevelopmentRegion     string   `plist:"CFBundleDevelopmentRegion,omitempty"`
	CFBundleDisplayName           string   `plist:"CFBundleDisplayName,omitempty"`
	CFBundleExecutable            string   `plist:"CFBundleExecutable,omitempty"`
	CFBundleIdentifier            string   `plist:"CFBundleIdentifier,omitempty"`
	CFBundleInfoDictionaryVersion string   `plist:"CFBundleInfoDictionaryVersion,omitempty"`
	CFBundleName                  string   `plist:"CFBundleName,omitempty"`
	CFBundlePackageType           string   `plist:"CFBundlePackageType,omitempty"`
	CFBundleShortVersionString    string   `plist:"CFBundleShortVersionString,omitempty"`
	CFBundleSignature             string   `plist:"CFBundleSignature,omitempty"`
	CFBundleSupportedPlatforms    []string `plist:"CFBundleSupportedPlatforms,omitempty"`
	CFBundleVersion               string   `plist:"CFBundleVersion,omitempty"`
	DTPlatformName                string   `plist:"DTPlatformName,omitempty"`
	DTPlatformVersion             string   `plist:"DTPlatformVersion,omitempty"`
	DTSDKName                     string   `plist:"DTSDKName,omitempty"`
	MinimumOSVersion              string   `plist:"MinimumOSVersion,omitempty"`
	UIDeviceFamily                []int    `plist:"UIDeviceFamily,omitempty"`
}

func (r *AppInfo) String() string {
	var out string
	out += "[Info]\n"
	out += "======\n"
	out += fmt.Sprintf("CFBundleExecutable: %s\n", r.CFBundleExecutable)
	out += fmt.Sprintf("CFBundleIdentifier: %s\n", r.CFBundleIdentifier)
	out += fmt.Sprintf("CFBundleName: %s\n", r.CFBundleName)
	out += fmt.Sprintf("CFBundlePackageType: %s\n", r.CFBundlePackageType)
	out += fmt.Sprintf("CFBundleShortVersionString: %s\n", r.CFBundleShortVersionString)
	out += fmt.Sprintf("CFBundleVersion: %s\n", r.CFBundleVersion)
	out += fmt.Sprintf("MinimumOSVersion: %s\n", r.MinimumOSVersion)
	return out
}

// ParseAppInfo parses an Info.plist
func ParseAppInfo(data []byte) (*AppInfo, error) {
	i := &AppInfo{}
	if err := plist.NewDecoder(bytes.NewReader(data)).Decode(i); err != nil {
		return nil, fmt.Errorf("failed to parse Info.plist: %w", err)
	}
	return i, nil
}

// NewFrameworkInfo returns the Info.plist of a minimal iOS framework
func NewFrameworkInfo(executable, identifier, minOS string) *AppInfo {
	return &AppInfo{
		CFBundleDevelopmentRegion:     "en",
		CFBundleExecutable:            executable,
		CFBundleIdentifier:            identifier,
		CFBundleInfoDictionaryVersion: "6.0",
		CFBundleName:                  executable,
		CFBundlePackageType:           "FMWK",
		CFBundleShortVersionString:    "1.0",
		CFBundleSignature:             "????",
		CFBundleSupportedPlatforms:    []string{"iPhoneOS"},
		CFBundleVersion:               "1",
		MinimumOSVersion:              minOS,
	}
}

// Marshal encodes the Info.plist as XML
func (r *AppInfo) Marshal() ([]byte, error) {
	dat, err := plist.MarshalIndent(r, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Info.plist: %w", err)
	}
	return dat, nil
}
