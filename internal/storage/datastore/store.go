package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/names"
)

// ManifestFile is the name of the manifest inside a compiled directory
const ManifestFile = "manifest.json"

// Item is a data item held in memory
type Item struct {
	Key   string
	Type  names.DataType
	Value interface{}
	Size  int64
}

// WriteArray writes an int32 array item and returns the number of bytes written
func WriteArray(path string, arr []int32) (int64, error) {
	return writeFrame(path, names.TypeArray, encodeArray(arr))
}

// WriteString writes a string item
func WriteString(path, s string) (int64, error) {
	return writeFrame(path, names.TypeString, []byte(s))
}

// WriteDict writes a dict item as JSON
func WriteDict(path string, v interface{}) (int64, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return writeFrame(path, names.TypeDict, payload)
}

// Write writes an item of any supported value type
func Write(path string, value interface{}) (int64, error) {
	switch v := value.(type) {
	case []int32:
		return WriteArray(path, v)
	case string:
		return WriteString(path, v)
	default:
		return WriteDict(path, v)
	}
}

func writeFrame(path string, dtype names.DataType, payload []byte) (int64, error) {
	data, err := encodeFrame(dtype, payload)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return int64(len(data)), nil
}

func readFrame(path string) (*frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fabricerrors.NewFabricError(fabricerrors.ErrCodeNotCompiled,
				fmt.Sprintf("data item file missing: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := decodeFrame(bytes.NewReader(data))
	if err != nil {
		return nil, fabricerrors.CorruptedData(fmt.Sprintf("bad data item file %s", path), err)
	}
	if actual := ComputeChecksum(f.payload); actual != f.checksum {
		return nil, fabricerrors.ChecksumFailed(path, f.checksum, actual)
	}
	return f, nil
}

// Load reads the data item described by info and decodes it into the Go
// type matching its key.
func Load(dkey string, info names.Info) (*Item, error) {
	f, err := readFrame(info.Path())
	if err != nil {
		return nil, err
	}
	if f.dtype != info.Type {
		return nil, fabricerrors.CorruptedData(
			fmt.Sprintf("%s: stored type %s, expected %s", info.Path(), f.dtype, info.Type), nil)
	}
	value, err := decodeValue(dkey, f)
	if err != nil {
		return nil, fabricerrors.CorruptedData(fmt.Sprintf("cannot decode %s", info.Path()), err)
	}
	return &Item{Key: dkey, Type: f.dtype, Value: value, Size: int64(len(f.payload))}, nil
}

func decodeValue(dkey string, f *frame) (interface{}, error) {
	switch f.dtype {
	case names.TypeArray:
		return decodeArray(f.payload)
	case names.TypeString:
		return string(f.payload), nil
	}

	p, err := names.DecompFull(dkey)
	if err != nil {
		return nil, err
	}
	var v interface{}
	switch {
	case p.Group == names.GroupXMLIDs && p.Direction == 'f':
		v, err = decodeJSON[map[string]int32](f.payload)
	case p.Group == names.GroupXMLIDs, p.Group == names.GroupFeatures:
		v, err = decodeJSON[map[int32]string](f.payload)
	case p.Group == names.GroupConnectivity:
		v, err = decodeJSON[map[int32][]model.Neighbour](f.payload)
	default:
		v, err = decodeJSON[map[int32]int32](f.payload)
	}
	return v, err
}

func decodeJSON[T any](payload []byte) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}

// WriteManifest stores the manifest of a compiled directory
func WriteManifest(dir string, m *model.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644)
}

// ReadManifest reads the manifest of a compiled directory
func ReadManifest(dir string) (*model.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fabricerrors.NotCompiled(filepath.Base(filepath.Dir(dir)), dir)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fabricerrors.CorruptedData("failed to parse manifest", err)
	}
	return &m, nil
}
