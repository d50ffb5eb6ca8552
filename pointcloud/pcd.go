package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

type pcdHeader struct {
	width  uint64
	height uint64
	points uint64
	data   PCDType
}

// NewFromFile returns a pointcloud read in from the given .pcd file.
func NewFromFile(fn string) (PointCloud, error) {
	if filepath.Ext(fn) != ".pcd" {
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	return ReadPCD(f)
}

// WriteToFile writes the point cloud out to a .pcd file in binary format.
func WriteToFile(pc PointCloud, fn string) (err error) {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WritePCD(pc, f, PCDBinary)
}

// WritePCD writes the cloud as a PCD v.7 file with x y z fields.
func WritePCD(pc PointCloud, out io.Writer, outputType PCDType) error {
	_, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		len(pc), 1, len(pc))
	if err != nil {
		return err
	}
	switch outputType {
	case PCDAscii:
		if _, err := fmt.Fprintf(out, "DATA ascii\n"); err != nil {
			return err
		}
		for _, p := range pc {
			if _, err := fmt.Fprintf(out, "%f %f %f\n", p.X, p.Y, p.Z); err != nil {
				return err
			}
		}
	case PCDBinary:
		if _, err := fmt.Fprintf(out, "DATA binary\n"); err != nil {
			return err
		}
		buf := make([]byte, 12)
		for _, p := range pc {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(p.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
			if _, err := out.Write(buf); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unsupported pcd output type %d", outputType)
	}
	return nil
}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %q", name, line)
	}
	var err error
	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if value != "x y z" {
			return errors.Errorf("unsupported pcd fields %q", value)
		}
	case "SIZE", "TYPE", "COUNT", "VIEWPOINT":
		// only x y z float clouds are produced here; these are fixed
	case "WIDTH":
		if header.width, err = strconv.ParseUint(value, 10, 64); err != nil {
			return errors.Errorf("invalid WIDTH field %s: %s", value, err)
		}
	case "HEIGHT":
		if header.height, err = strconv.ParseUint(value, 10, 64); err != nil {
			return errors.Errorf("invalid HEIGHT field %s: %s", value, err)
		}
	case "POINTS":
		if header.points, err = strconv.ParseUint(value, 10, 64); err != nil {
			return errors.Errorf("invalid POINTS field %s: %s", value, err)
		}
		if header.points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d",
				header.points, header.width*header.height)
		}
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		default:
			return errors.Errorf("unsupported pcd data type %q", value)
		}
	}
	return nil
}

// ReadPCD reads a PCD v.7 file with x y z fields into a point cloud.
func ReadPCD(in io.Reader) (PointCloud, error) {
	reader := bufio.NewReader(in)
	var header pcdHeader
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "error reading pcd header")
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}

	pc := make(PointCloud, 0, header.points)
	switch header.data {
	case PCDAscii:
		for i := uint64(0); i < header.points; i++ {
			line, err := reader.ReadString('\n')
			if err != nil && !(err == io.EOF && i == header.points-1) {
				return nil, errors.Wrap(err, "error reading pcd data")
			}
			tokens := strings.Fields(line)
			if len(tokens) != 3 {
				return nil, errors.Errorf("unexpected number of tokens on pcd data line %q", line)
			}
			var coords [3]float64
			for j, token := range tokens {
				if coords[j], err = strconv.ParseFloat(token, 64); err != nil {
					return nil, errors.Wrapf(err, "invalid pcd coordinate %q", token)
				}
			}
			pc = append(pc, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
		}
	case PCDBinary:
		buf := make([]byte, 12)
		for i := uint64(0); i < header.points; i++ {
			if _, err := io.ReadFull(reader, buf); err != nil {
				return nil, errors.Wrap(err, "error reading pcd data")
			}
			pc = append(pc, r3.Vector{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[8:]))),
			})
		}
	}
	return pc, nil
}
