package timing

import (
	"time"

	"brodi-nudge/internal/domain"
)

// Единая таблица эмпирических коэффициентов скоринга. Значения подобраны
// по наблюдениям за вовлечённостью и меняются только здесь.
const (
	baseScore            = 0.5
	hourProximityWeight  = 0.3
	weekdayPatternWeight = 0.2
	lowMoodBoost         = 0.2
	taskHourBoost        = 0.25
	recencyPenalty       = 0.3

	// Порог "низкого" настроения по шкале 1-10.
	lowMoodCeiling = 3.0

	// Эффективность по умолчанию, когда отклик ещё не оценён.
	defaultEffectiveness = 5.0
	// Лучший час по умолчанию при пустой истории: 14:00.
	defaultOptimalHour = 14
	// Сколько последних записей журнала участвует в поиске лучшего часа.
	historySampleLimit = 50

	// Окно подавления повторных сообщений любого типа.
	recencyWindow = 2 * time.Hour
	// Окно подсчёта дневного лимита.
	frequencyWindow = 24 * time.Hour

	// Зона "на грани порога", в которой отправка сдвигается к лучшему часу.
	marginalBand = 0.1
	// Радиус (в часах по кругу), внутри которого отправляем сразу.
	immediateHourRadius = 2
	// Ранние и поздние границы отложенной отправки.
	earlyHourCutoff = 8
	earlyDeferHour  = 9
	lateHourCutoff  = 20
	maxDeferHour    = 18
)

// dailyCaps отображает настройку частоты в дневной лимит сообщений одного типа.
var dailyCaps = map[domain.FrequencyPreference]int{
	domain.FrequencyMinimal:  1,
	domain.FrequencyNormal:   3,
	domain.FrequencyFrequent: 5,
}

// typeThresholds — базовый порог принятия по типу сообщения.
var typeThresholds = map[domain.InteractionType]float64{
	domain.InteractionMoodReminder: 0.4,
	domain.InteractionCelebration:  0.3,
	domain.InteractionTaskReminder: 0.5,
	domain.InteractionNudge:        0.6,
	domain.InteractionRandom:       0.7,
}

// frequencyShifts — сдвиг порога по настройке частоты.
var frequencyShifts = map[domain.FrequencyPreference]float64{
	domain.FrequencyMinimal:  0.2,
	domain.FrequencyNormal:   0,
	domain.FrequencyFrequent: -0.1,
}

// DailyCap возвращает дневной лимит для настройки частоты.
func DailyCap(f domain.FrequencyPreference) int {
	if limit, ok := dailyCaps[f]; ok {
		return limit
	}
	return dailyCaps[domain.FrequencyNormal]
}

func acceptThreshold(t domain.InteractionType, f domain.FrequencyPreference) float64 {
	threshold, ok := typeThresholds[t]
	if !ok {
		threshold = typeThresholds[domain.InteractionNudge]
	}
	return threshold + frequencyShifts[f]
}
