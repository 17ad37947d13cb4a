package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clbanning/mxj/v2"

	"forcecode/internal/apperrors"
	"forcecode/internal/artifact"
	"forcecode/internal/gateway"
)

// ParseMetadata decodes a metadata XML document into an upsert record. The
// root element must be named after the artifact's kind; its attributes are
// dropped and fullName is set to the file name.
func ParseMetadata(a artifact.Artifact) (gateway.Record, error) {
	m, err := mxj.NewMapXml([]byte(a.Body))
	if err != nil {
		return nil, apperrors.Parse("metadata.parse", err)
	}

	root, ok := m[string(a.Kind)]
	if !ok {
		return nil, apperrors.Parse("metadata.parse", fmt.Errorf("root element %s not found", a.Kind))
	}

	record := gateway.Record{}
	if fields, ok := root.(map[string]any); ok {
		for k, v := range fields {
			if strings.HasPrefix(k, "-") {
				continue
			}
			record[k] = v
		}
	}
	record["fullName"] = a.FileName
	return record, nil
}

// deployMetadata upserts the parsed record in a single call.
func deployMetadata(ctx context.Context, gw gateway.Gateway, a artifact.Artifact) (gateway.UpsertResult, error) {
	record, err := ParseMetadata(a)
	if err != nil {
		return gateway.UpsertResult{}, err
	}

	results, err := gw.Upsert(ctx, string(a.Kind), []gateway.Record{record})
	if err != nil {
		return gateway.UpsertResult{}, err
	}
	if len(results) == 0 {
		return gateway.UpsertResult{}, apperrors.Internal("metadata.upsert", errors.New("empty upsert response"))
	}

	res := results[0]
	if !res.Success {
		return res, apperrors.RemoteRejection("metadata.upsert", gateway.FirstMessage(res.Errors))
	}
	return res, nil
}
