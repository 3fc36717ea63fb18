// Copyright 2026 The Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the environment-bound credential/device identity
// (spec §6) the CLI needs to build a Broker identity, following the same
// "read, validate, fail with a clear message" shape the teacher's
// cmd/datasource-syncer uses for flags.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// AccountEnv holds the account-server flow environment variables.
type AccountEnv struct {
	DeviceID      uint32
	SerialNumber  string
	SystemVersion uint32
	RegionID      int
	Country       string
	Language      string
	Username      string
	Password      string
}

// LoadAccountEnv reads DEVICE_ID, SERIAL_NUMBER, SYSTEM_VERSION, REGION_ID,
// COUNTRY, LANGUAGE, NEX_USERNAME, NEX_PASSWORD (spec §6).
func LoadAccountEnv() (AccountEnv, error) {
	var env AccountEnv
	var err error

	if env.DeviceID, err = getUint32("DEVICE_ID", 10); err != nil {
		return env, err
	}
	if env.SerialNumber, err = getRequired("SERIAL_NUMBER"); err != nil {
		return env, err
	}
	if env.SystemVersion, err = getUint32("SYSTEM_VERSION", 16); err != nil {
		return env, err
	}
	regionStr, err := getRequired("REGION_ID")
	if err != nil {
		return env, err
	}
	region, err := strconv.Atoi(regionStr)
	if err != nil {
		return env, fmt.Errorf("config: REGION_ID: %w", err)
	}
	env.RegionID = region

	if env.Country, err = getRequired("COUNTRY"); err != nil {
		return env, err
	}
	if env.Language, err = getRequired("LANGUAGE"); err != nil {
		return env, err
	}
	if env.Username, err = getRequired("NEX_USERNAME"); err != nil {
		return env, err
	}
	if env.Password, err = getRequired("NEX_PASSWORD"); err != nil {
		return env, err
	}
	return env, nil
}

// HandheldEnv holds the handheld-flow environment variables.
type HandheldEnv struct {
	SerialNumber string
	MACAddress   string
	DeviceCert   []byte
	Region       string
	Language     string
	Username     string
	UsernameHMAC string
	PrincipalID  string
	Password     string
}

// LoadHandheldEnv reads the 3DS_* environment variables (spec §6).
func LoadHandheldEnv() (HandheldEnv, error) {
	var env HandheldEnv
	var err error

	if env.SerialNumber, err = getRequired("3DS_SERIAL_NUMBER"); err != nil {
		return env, err
	}
	if env.MACAddress, err = getRequired("3DS_MAC_ADDRESS"); err != nil {
		return env, err
	}
	certHex, err := getRequired("3DS_FCD_CERT")
	if err != nil {
		return env, err
	}
	if env.DeviceCert, err = decodeHex(certHex); err != nil {
		return env, fmt.Errorf("config: 3DS_FCD_CERT: %w", err)
	}
	if env.Region, err = getRequired("3DS_REGION"); err != nil {
		return env, err
	}
	if env.Language, err = getRequired("3DS_LANG"); err != nil {
		return env, err
	}
	if env.Username, err = getRequired("3DS_USERNAME"); err != nil {
		return env, err
	}
	if env.UsernameHMAC, err = getRequired("3DS_USERNAME_HMAC"); err != nil {
		return env, err
	}
	if env.PrincipalID, err = getRequired("3DS_PID"); err != nil {
		return env, err
	}
	if env.Password, err = getRequired("3DS_PASSWORD"); err != nil {
		return env, err
	}
	return env, nil
}

func getRequired(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("config: required environment variable %s is not set", name)
	}
	return v, nil
}

func getUint32(name string, base int) (uint32, error) {
	v, err := getRequired(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, base, 32)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return uint32(n), nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
