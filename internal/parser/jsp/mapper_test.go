package jsp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
)

const orderMapperXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE mapper PUBLIC "-//mybatis.org//DTD Mapper 3.0//EN" "http://mybatis.org/dtd/mybatis-3-mapper.dtd">
<mapper namespace="com.acme.order.OrderMapper">
  <resultMap id="orderMap" type="com.acme.order.Order">
    <id property="id" column="ORDER_ID"/>
  </resultMap>
  <sql id="cols">o.ORDER_ID, o.STATUS</sql>
  <select id="findByCustomer" resultMap="orderMap">
    SELECT <include refid="cols"/>
    FROM ORDERS o
    INNER JOIN CUSTOMERS c ON o.CUSTOMER_ID = c.CUSTOMER_ID
    <where>
      <if test="status != null">AND o.STATUS = #{status}</if>
      <if test="name != null">AND c.NAME LIKE #{name}</if>
    </where>
  </select>
  <insert id="insert">
    <selectKey keyProperty="id" resultType="long" order="BEFORE">SELECT ORDER_SEQ.NEXTVAL FROM DUAL</selectKey>
    INSERT INTO ORDERS (ORDER_ID, STATUS) VALUES (#{id}, #{status})
  </insert>
  <update id="touch">
    UPDATE ORDERS <set><if test="s != null">STATUS = #{s},</if></set> WHERE ORDER_ID = #{id}
  </update>
  <delete id="purge">DELETE FROM ${table} <include refid="missing"/></delete>
</mapper>
`

func parseMapper(t *testing.T, content string) *model.FileExtraction {
	t.Helper()
	fx, err := NewMapperParser().Parse(context.Background(), parser.FileInput{
		Path:     "mapper/OrderMapper.xml",
		Language: model.LanguageMyBatis,
		Content:  []byte(content),
	})
	require.NoError(t, err)
	return fx
}

func TestParseMapper(t *testing.T) {
	fx := parseMapper(t, orderMapperXML)
	require.Len(t, fx.SQLUnits, 4)

	byKey := make(map[string]model.SQLUnit)
	for _, u := range fx.SQLUnits {
		assert.Equal(t, model.SourceMyBatisElement, u.SourceKind)
		byKey[u.StatementKey] = u
	}

	find := byKey["com.acme.order.OrderMapper.findByCustomer"]
	assert.Equal(t, "SELECT o.ORDER_ID, o.STATUS FROM ORDERS o INNER JOIN CUSTOMERS c ON o.CUSTOMER_ID = c.CUSTOMER_ID WHERE o.STATUS = ? AND c.NAME LIKE ?", find.ResolvedText)
	assert.True(t, find.HasDynamicContent)
	require.Len(t, find.Joins, 1)
	assert.Equal(t, model.JoinExplicit, find.Joins[0].Kind)

	insert := byKey["com.acme.order.OrderMapper.insert"]
	assert.Equal(t, "INSERT INTO ORDERS (ORDER_ID, STATUS) VALUES (?, ?)", insert.ResolvedText)
	assert.NotContains(t, insert.RawText, "NEXTVAL")
	assert.False(t, insert.HasDynamicContent)
	assert.Equal(t, model.StatementInsert, insert.StatementType)

	touch := byKey["com.acme.order.OrderMapper.touch"]
	assert.Equal(t, "UPDATE ORDERS SET STATUS = ? WHERE ORDER_ID = ?", touch.ResolvedText)

	purge := byKey["com.acme.order.OrderMapper.purge"]
	assert.True(t, purge.HasDynamicContent)
	var codes []string
	for _, d := range purge.Diagnostics {
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, model.CodeUnresolvedInclude)

	var mapsTo []string
	for _, e := range fx.Edges {
		if e.Kind == model.EdgeMapsTo {
			mapsTo = append(mapsTo, e.DstID)
		}
	}
	assert.Equal(t, []string{"com.acme.order.OrderMapper", "com.acme.order.Order"}, mapsTo)
}

func TestParseIBatisSqlMap(t *testing.T) {
	fx := parseMapper(t, `<sqlMap namespace="Order">
  <select id="list" resultClass="order">
    SELECT * FROM ORDERS o, ORDER_ITEMS i WHERE o.ORDER_ID = i.ORDER_ID
    <dynamic>
      <isNotEmpty prepend="AND" property="status">o.STATUS = #status#</isNotEmpty>
    </dynamic>
    ORDER BY $orderBy$
  </select>
</sqlMap>`)
	require.Len(t, fx.SQLUnits, 1)
	u := fx.SQLUnits[0]
	assert.Equal(t, "Order.list", u.StatementKey)
	assert.True(t, u.HasDynamicContent)
	assert.Contains(t, u.ResolvedText, "AND o.STATUS = ?")
	assert.Contains(t, u.ResolvedText, "ORDER BY ${orderBy}")
	require.Len(t, u.Joins, 1)
}

func TestParseNonMapperXML(t *testing.T) {
	fx := parseMapper(t, `<beans><bean id="x" class="a.B"/></beans>`)
	assert.Empty(t, fx.SQLUnits)
	assert.Empty(t, fx.Edges)
	assert.Empty(t, fx.Diagnostics)
}

func TestParseIncludeCycle(t *testing.T) {
	fx := parseMapper(t, `<mapper namespace="n">
  <sql id="a">A_COL <include refid="b"/></sql>
  <sql id="b">B_COL <include refid="n.a"/></sql>
  <select id="s">SELECT <include refid="a"/> FROM T</select>
</mapper>`)
	require.Len(t, fx.SQLUnits, 1)
	assert.Equal(t, "SELECT A_COL B_COL FROM T", fx.SQLUnits[0].ResolvedText)
	assert.True(t, fx.SQLUnits[0].HasDynamicContent)
}

func TestParseUnresolvedIncludeDowngrades(t *testing.T) {
	fx := parseMapper(t, `<mapper namespace="com.acme.order.OrderMapper">
  <sql id="cols">ORDER_ID, STATUS</sql>
  <select id="complete">SELECT <include refid="cols"/> FROM ORDERS</select>
  <select id="partial">SELECT ORDER_ID <include refid="missingFilter"/> FROM ORDERS</select>
</mapper>`)
	require.Len(t, fx.SQLUnits, 2)

	byKey := make(map[string]model.SQLUnit)
	for _, u := range fx.SQLUnits {
		byKey[u.StatementKey] = u
	}

	complete := byKey["com.acme.order.OrderMapper.complete"]
	assert.False(t, complete.HasDynamicContent)
	assert.InDelta(t, 0.95, complete.ParseConfidence, 1e-9)

	partial := byKey["com.acme.order.OrderMapper.partial"]
	assert.Equal(t, "SELECT ORDER_ID FROM ORDERS", partial.ResolvedText)
	assert.True(t, partial.HasDynamicContent)
	assert.Less(t, partial.ParseConfidence, complete.ParseConfidence)

	codes := map[string]bool{}
	for _, d := range partial.Diagnostics {
		codes[d.Code] = true
	}
	assert.True(t, codes[model.CodeUnresolvedInclude])
	assert.True(t, codes[model.CodeLowConfidence])
}
