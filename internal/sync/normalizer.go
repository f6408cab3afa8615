// Package sync はリモートCRMからの同期パイプラインを提供する。
// 取得 → 正規化 → アップサートの3段階で構成され、正規化失敗時の
// 挙動はポリシー（failfast/besteffort）で切り替わる。
package sync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/dealscope/internal/bitrix"
	"github.com/hitoshi/dealscope/internal/model"
	"github.com/hitoshi/dealscope/internal/security"
)

// dateLayouts は日付パースで試行するレイアウト。
// リモートCRMはタイムゾーン付きISO 8601を返すが、
// 歴史的データには秒なし・日付のみの表現も混在する。
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer は生レコードをドメインモデルへ変換する。
// フィールド単位の型変換失敗はNormalizationErrorとして報告され、
// 呼び出し元のポリシーで中断かスキップかが決まる。
type Normalizer struct {
	sanitizer security.TextSanitizerService
}

// NewNormalizer はNormalizerの新しいインスタンスを生成する。
func NewNormalizer(sanitizer security.TextSanitizerService) *Normalizer {
	return &Normalizer{sanitizer: sanitizer}
}

// NormalizeManager はプロフィールの生レコードをManagerへ変換する。
func (n *Normalizer) NormalizeManager(raw bitrix.RawRecord) (*model.Manager, error) {
	id, err := coerceInt64(raw["ID"])
	if err != nil {
		return nil, normErr("manager", "ID", raw["ID"], err)
	}

	isAdmin, err := coerceBool(raw["ADMIN"])
	if err != nil {
		return nil, normErr("manager", "ADMIN", raw["ADMIN"], err)
	}

	return &model.Manager{
		ID:       id,
		Name:     coerceString(raw["NAME"]),
		LastName: coerceString(raw["LAST_NAME"]),
		IsAdmin:  isAdmin,
	}, nil
}

// NormalizeDeal は案件の生レコードをDealへ変換する。
// タイトルはサニタイズされ、金額は非負が強制される。
// 日付はパースを試み、失敗した場合はnil（日付不明）のまま保存する。
func (n *Normalizer) NormalizeDeal(raw bitrix.RawRecord) (*model.Deal, error) {
	id, err := coerceInt64(raw["ID"])
	if err != nil {
		return nil, normErr("deal", "ID", raw["ID"], err)
	}

	opportunity, err := coerceFloat64(raw["OPPORTUNITY"])
	if err != nil {
		return nil, normErr("deal", "OPPORTUNITY", raw["OPPORTUNITY"], err)
	}
	if opportunity < 0 || math.IsNaN(opportunity) || math.IsInf(opportunity, 0) {
		return nil, normErr("deal", "OPPORTUNITY", raw["OPPORTUNITY"],
			fmt.Errorf("金額は非負の有限値である必要があります"))
	}

	// 担当者未設定のレコードは0（未割り当て）として扱う
	var assignedByID int64
	if raw["ASSIGNED_BY_ID"] != nil {
		assignedByID, err = coerceInt64(raw["ASSIGNED_BY_ID"])
		if err != nil {
			return nil, normErr("deal", "ASSIGNED_BY_ID", raw["ASSIGNED_BY_ID"], err)
		}
	}

	dateCreate := coerceString(raw["DATE_CREATE"])
	closeDate := coerceString(raw["CLOSEDATE"])

	return &model.Deal{
		ID:               id,
		Title:            n.sanitizer.SanitizeText(coerceString(raw["TITLE"])),
		TypeID:           coerceString(raw["TYPE_ID"]),
		StageID:          coerceString(raw["STAGE_ID"]),
		CurrencyID:       coerceString(raw["CURRENCY_ID"]),
		SourceID:         coerceString(raw["SOURCE_ID"]),
		Opportunity:      opportunity,
		AssignedByID:     assignedByID,
		BeginDate:        coerceString(raw["BEGINDATE"]),
		CloseDate:        closeDate,
		DateCreate:       dateCreate,
		DateModify:       coerceString(raw["DATE_MODIFY"]),
		LastActivityTime: coerceString(raw["LAST_ACTIVITY_TIME"]),
		DateCreateAt:     parseDate(dateCreate),
		CloseDateAt:      parseDate(closeDate),
	}, nil
}

// parseDate は既知のレイアウトで日付パースを試みる。
// 全レイアウトで失敗した場合はnil（日付不明）を返し、エラーにはしない。
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// normErr はフィールド単位のNormalizationErrorを構築する。
func normErr(entity, field string, value any, err error) *model.NormalizationError {
	return &model.NormalizationError{
		Entity: entity,
		Field:  field,
		Value:  fmt.Sprintf("%v", value),
		Reason: err.Error(),
	}
}

// coerceInt64 は生の値を整数IDへ変換する。
// リモートは同じフィールドを文字列で返すことも数値で返すこともある。
func coerceInt64(value any) (int64, error) {
	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("整数として解釈できません")
		}
		return parsed, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("整数として解釈できません")
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("値がありません")
	default:
		return 0, fmt.Errorf("整数として解釈できない型です: %T", value)
	}
}

// coerceFloat64 は生の値を金額へ変換する。空文字列は0として扱う。
func coerceFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("数値として解釈できません")
		}
		return parsed, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("数値として解釈できない型です: %T", value)
	}
}

// coerceString は生の値を文字列へ変換する。nilは空文字列になる。
func coerceString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", value)
	}
}

// coerceBool は生の値を真偽値へ変換する。
// リモートは"Y"/"N"や文字列の"true"/"false"を返すことがある。
func coerceBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "Y", "YES", "TRUE", "1":
			return true, nil
		case "N", "NO", "FALSE", "0", "":
			return false, nil
		default:
			return false, fmt.Errorf("真偽値として解釈できません")
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("真偽値として解釈できない型です: %T", value)
	}
}
