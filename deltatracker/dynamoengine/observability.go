package dynamoengine

import (
	"errors"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const (
	requestDescribeTable   = "DescribeTable"
	requestCreateTable     = "CreateTable"
	requestWaitTableExists = "TableExistsWaiter"
	requestQuery           = "Query"
	requestPutItem         = "PutItem"

	logMsgRequestSent   = "dynamodb request: "
	logMsgRequestFailed = "dynamodb request failed"
	logMsgDecodeFailed  = "failed to decode snapshot item"
	logMsgEncodeFailed  = "failed to encode snapshot item"
	logMsgTableStatus   = "table status"
	logAttrError        = "error"
	logAttrErrorCode    = "error_code"
	logAttrRequest      = "request"
	logAttrTable        = "table"
	logAttrTableID      = "table_id"
	logAttrStatus       = "status"
	logAttrDurationMS   = "duration_ms"
)

func (s *SnapshotStore) logRequest(request string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgRequestSent+request, logAttrTable, s.tableName, logAttrDurationMS, toMilliseconds(duration))
	}
}

func (s *SnapshotStore) logTableStatus(table *types.TableDescription) {
	if s.logger == nil {
		return
	}

	status := "UNKNOWN"
	if table != nil {
		status = string(table.TableStatus)
	}

	s.logger.Info(logMsgTableStatus, logAttrTable, s.tableName, logAttrStatus, status)
}

func (s *SnapshotStore) logError(msg string, err error, args ...any) {
	if s.logger != nil {
		allArgs := []any{logAttrError, err.Error()}

		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			allArgs = append(allArgs, logAttrErrorCode, apiErr.ErrorCode())
		}

		allArgs = append(allArgs, args...)
		s.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
