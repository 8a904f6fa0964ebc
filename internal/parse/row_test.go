package parse_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/parse"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
)

func TestExtractRow(t *testing.T) {
	e, _ := newExtractor()

	t.Run("choice row", func(t *testing.T) {
		q, ok := e.ExtractRow([]string{" 哪些是容器？ ", "多选题", "中等", "Java", "集合", "A,C", "List 与 Map", "List | Set|Map|", "集合, 容器，基础"})
		require.True(t, ok)
		assert.Equal(t, "哪些是容器？", q.Title)
		assert.Equal(t, question.MultipleChoice, q.Type)
		assert.Equal(t, []string{"List", "Set", "Map"}, q.Options)
		assert.Equal(t, "A,C", q.CorrectAnswer)
		assert.Equal(t, "List 与 Map", q.Explanation)
		assert.ElementsMatch(t, []string{"集合", "容器", "基础"}, q.Tags)
	})

	t.Run("true false row", func(t *testing.T) {
		q, ok := e.ExtractRow([]string{"地球是平的", "判断题", "简单", "地理", "常识", "错误"})
		require.True(t, ok)
		assert.Equal(t, "false", q.CorrectAnswer)
		assert.Empty(t, q.Options)
	})

	t.Run("options ignored for non choice", func(t *testing.T) {
		q, ok := e.ExtractRow([]string{"1+1=?", "填空题", "简单", "数学", "运算", "2", "", "a|b"})
		require.True(t, ok)
		assert.Empty(t, q.Options)
		assert.Equal(t, "2", q.CorrectAnswer)
	})

	t.Run("empty answer rejected", func(t *testing.T) {
		_, ok := e.ExtractRow([]string{"有题目没答案", "单选题", "简单", "Java", "基础", "  ", "", "a|b"})
		assert.False(t, ok)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		_, ok := e.ExtractRow([]string{"", "单选题", "简单", "Java", "基础", "A"})
		assert.False(t, ok)
	})
}

func TestReadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"题目", "题型", "难度", "科目", "知识点", "答案", "解析", "选项", "标签"},
		{"1+1=?", "单选题", "简单", "数学", "运算", "B", "", "1|2|3"},
		{"没有答案", "单选题", "简单", "数学", "运算", "", "", "1|2"},
		{"2>1", "判断题", "简单", "数学", "比较", "√"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	data, err := parse.ReadWorkbook(bytes.NewReader(buf.Bytes()), "")
	require.NoError(t, err)
	require.Len(t, data, 3, "header row is skipped")

	e, _ := newExtractor()
	qs := e.ExtractRows(data)
	require.Len(t, qs, 2, "row without an answer is skipped")
	assert.Equal(t, "B", qs[0].CorrectAnswer)
	assert.Equal(t, []string{"1", "2", "3"}, qs[0].Options)
	assert.Equal(t, "true", qs[1].CorrectAnswer)

	_, err = parse.ReadWorkbook(bytes.NewReader(buf.Bytes()), "Missing")
	assert.Error(t, err)
}
