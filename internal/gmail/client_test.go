// Copyright (c) 2026 Mina Ibrahim
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gmail

import (
	"testing"
	"time"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

func TestBuildQuery(t *testing.T) {
	since := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		monitor models.MonitorConfig
		want    string
	}{
		{
			name:    "address only",
			monitor: models.MonitorConfig{EmailAddress: "alerts@example.com"},
			want:    "to:alerts@example.com after:2026/08/29",
		},
		{
			name: "sender filter",
			monitor: models.MonitorConfig{
				EmailAddress: "alerts@example.com",
				FilterSender: "bot@example.com",
			},
			want: "to:alerts@example.com from:bot@example.com after:2026/08/29",
		},
		{
			name: "all filters",
			monitor: models.MonitorConfig{
				EmailAddress:  "alerts@example.com",
				FilterSender:  "bot@example.com",
				FilterSubject: "Signal",
			},
			want: "to:alerts@example.com from:bot@example.com subject:Signal after:2026/08/29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.monitor, since); got != tt.want {
				t.Errorf("buildQuery = %q, want %q", got, tt.want)
			}
		})
	}
}
