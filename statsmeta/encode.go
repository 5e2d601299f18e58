package statsmeta

import (
	"bytes"
	"fmt"
	"io"
)

func encodeStats(s StatsMetadata) ([]byte, error) {
	var buf bytes.Buffer
	fields := []int64{
		s.MinTimestamp, s.MaxTimestamp,
		int64(s.MinLocalDeletionTime), int64(s.MaxLocalDeletionTime),
		int64(s.MinTTL), int64(s.MaxTTL),
		s.TotalCells, s.TotalRows, s.RepairedAt,
	}
	for _, f := range fields {
		if err := writeInt64Stats(&buf, f); err != nil {
			return nil, err
		}
	}
	if err := writeBytesStats(&buf, s.MinClustering); err != nil {
		return nil, err
	}
	if err := writeBytesStats(&buf, s.MaxClustering); err != nil {
		return nil, err
	}
	if err := writeBytesStats(&buf, s.FirstKey); err != nil {
		return nil, err
	}
	if err := writeBytesStats(&buf, s.LastKey); err != nil {
		return nil, err
	}
	if err := s.PartitionSizes.serialize(&buf); err != nil {
		return nil, fmt.Errorf("encode partition sizes: %w", err)
	}
	if err := s.CellCounts.serialize(&buf); err != nil {
		return nil, fmt.Errorf("encode cell counts: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeStats(blob []byte) (StatsMetadata, error) {
	r := bytes.NewReader(blob)
	var s StatsMetadata

	vals := make([]int64, 9)
	for i := range vals {
		v, err := readInt64Stats(r)
		if err != nil {
			return s, err
		}
		vals[i] = v
	}
	s.MinTimestamp = vals[0]
	s.MaxTimestamp = vals[1]
	s.MinLocalDeletionTime = int32(vals[2])
	s.MaxLocalDeletionTime = int32(vals[3])
	s.MinTTL = int32(vals[4])
	s.MaxTTL = int32(vals[5])
	s.TotalCells = vals[6]
	s.TotalRows = vals[7]
	s.RepairedAt = vals[8]

	var err error
	if s.MinClustering, err = readBytesStats(r); err != nil {
		return s, err
	}
	if s.MaxClustering, err = readBytesStats(r); err != nil {
		return s, err
	}
	if s.FirstKey, err = readBytesStats(r); err != nil {
		return s, err
	}
	if s.LastKey, err = readBytesStats(r); err != nil {
		return s, err
	}
	if s.PartitionSizes, err = deserializeHistogram(r); err != nil {
		return s, err
	}
	if s.CellCounts, err = deserializeHistogram(r); err != nil {
		return s, err
	}
	return s, nil
}

func writeBytesStats(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytesStats(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return b, nil
}
