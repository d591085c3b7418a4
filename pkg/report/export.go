package report

import (
	"encoding/json"
	"io"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.yaml.in/yaml/v3"
)

func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func WriteYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// PlyRecord is one row of the Parquet export. Scores are from White's side.
type PlyRecord struct {
	Ply        int32  `parquet:"name=ply, type=INT32"`
	SAN        string `parquet:"name=san, type=BYTE_ARRAY, convertedtype=UTF8"`
	ScoreType  string `parquet:"name=score_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	ScoreValue int32  `parquet:"name=score_value, type=INT32"`
	BestMove   string `parquet:"name=best_move, type=BYTE_ARRAY, convertedtype=UTF8"`
	Judgement  string `parquet:"name=judgement, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func Records(r Report) []PlyRecord {
	res := make([]PlyRecord, 0, len(r.Plies))
	for _, p := range r.Plies {
		res = append(res, PlyRecord{
			Ply:        int32(p.Ply),
			SAN:        p.SAN,
			ScoreType:  p.WhiteScore.Kind.String(),
			ScoreValue: int32(p.WhiteScore.Value),
			BestMove:   p.BestMove,
			Judgement:  string(p.Judgement),
		})
	}
	return res
}

// WriteParquet writes one row per ply to path.
func WriteParquet(path string, r Report) error {
	fileWriter, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	defer fileWriter.Close()

	parquetWriter, err := writer.NewParquetWriter(fileWriter, new(PlyRecord), 1)
	if err != nil {
		return err
	}
	parquetWriter.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range Records(r) {
		if err := parquetWriter.Write(rec); err != nil {
			return err
		}
	}
	if err := parquetWriter.WriteStop(); err != nil {
		return err
	}
	return fileWriter.Close()
}
